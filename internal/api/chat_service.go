package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matheus3301/dmsync/internal/aggregate"
	"github.com/matheus3301/dmsync/internal/registry"
)

// ChatService serves the chat list and the presence snapshot.
type ChatService struct {
	agg *aggregate.Aggregator
	reg *registry.Registry
}

// NewChatService creates a new chat service.
func NewChatService(agg *aggregate.Aggregator, reg *registry.Registry) *ChatService {
	return &ChatService{agg: agg, reg: reg}
}

// Mount registers the chat routes on an authenticated group.
func (s *ChatService) Mount(g *gin.RouterGroup) {
	g.GET("/messages/chats", s.handleChats)
	g.GET("/presence", s.handlePresence)
}

func (s *ChatService) handleChats(c *gin.Context) {
	summaries, err := s.agg.SummariesFor(c.Request.Context(), GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *ChatService) handlePresence(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": s.reg.Online()})
}
