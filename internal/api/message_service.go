package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matheus3301/dmsync/internal/dispatch"
	"github.com/matheus3301/dmsync/internal/gateway"
	"github.com/matheus3301/dmsync/internal/model"
)

// MessageService couples the message log with realtime delivery.
type MessageService struct {
	gw       *gateway.Gateway
	dispatch *dispatch.Dispatcher
}

// NewMessageService creates a new message service.
func NewMessageService(gw *gateway.Gateway, d *dispatch.Dispatcher) *MessageService {
	return &MessageService{gw: gw, dispatch: d}
}

// Send appends a message and pushes it to the receiver if connected.
func (s *MessageService) Send(ctx context.Context, sender, receiver, text, media string) (model.Message, error) {
	msg, err := s.gw.Append(ctx, sender, receiver, text, media)
	if err != nil {
		return model.Message{}, err
	}
	s.dispatch.PushNewMessage(msg)
	return msg, nil
}

// History returns the conversation between self and partner oldest first.
func (s *MessageService) History(ctx context.Context, self, partner string) ([]model.Message, error) {
	return s.gw.RangeBetween(ctx, self, partner)
}

// MarkRead marks everything sender sent to reader as read and tells the
// sender. The receipt goes out even when nothing changed.
func (s *MessageService) MarkRead(ctx context.Context, reader, sender string) (int64, error) {
	n, err := s.gw.MarkReadFrom(ctx, sender, reader)
	if err != nil {
		return 0, err
	}
	s.dispatch.PushReadReceipt(sender, reader)
	return n, nil
}

type sendRequest struct {
	Text  string `json:"text"`
	Media string `json:"media"`
	Image string `json:"image"`
}

type readRequest struct {
	SenderID string `json:"senderId" binding:"required"`
}

// Mount registers the message routes on an authenticated group.
func (s *MessageService) Mount(g *gin.RouterGroup) {
	g.GET("/messages/:id", s.handleHistory)
	g.POST("/messages/send/:id", s.handleSend)
	g.POST("/messages/read", s.handleRead)
}

func (s *MessageService) handleHistory(c *gin.Context) {
	msgs, err := s.History(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (s *MessageService) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	media := req.Media
	if media == "" {
		media = req.Image
	}
	msg, err := s.Send(c.Request.Context(), GetUserID(c), c.Param("id"), req.Text, media)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *MessageService) handleRead(c *gin.Context) {
	var req readRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	n, err := s.MarkRead(c.Request.Context(), GetUserID(c), req.SenderID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updatedCount": n})
}
