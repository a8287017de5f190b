package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matheus3301/dmsync/internal/gateway"
	"github.com/matheus3301/dmsync/internal/model"
)

// UserService manages participants and contacts.
type UserService struct {
	dir *gateway.Directory
}

// NewUserService creates a new user service.
func NewUserService(dir *gateway.Directory) *UserService {
	return &UserService{dir: dir}
}

type createUserRequest struct {
	ID          string `json:"id"`
	FullName    string `json:"fullName" binding:"required"`
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Region      string `json:"region"`
}

type addContactRequest struct {
	Name        string `json:"name" binding:"required"`
	PhoneNumber string `json:"phoneNumber" binding:"required"`
}

// MountPublic registers the registration route. Identity issuance is
// handled upstream, so it is not behind authentication.
func (s *UserService) MountPublic(g *gin.RouterGroup) {
	g.POST("/users", s.handleCreateUser)
}

// Mount registers account removal and the contact routes on an
// authenticated group.
func (s *UserService) Mount(g *gin.RouterGroup) {
	g.DELETE("/users/:id", s.handleDeleteUser)
	g.POST("/contacts", s.handleAddContact)
	g.GET("/contacts", s.handleListContacts)
}

func (s *UserService) handleCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	u, err := s.dir.CreateUser(c.Request.Context(), model.User{
		ID:          req.ID,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		Region:      req.Region,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

// Participants may only remove themselves.
func (s *UserService) handleDeleteUser(c *gin.Context) {
	id := c.Param("id")
	if id != GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"message": "forbidden"})
		return
	}
	if err := s.dir.DeleteUser(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *UserService) handleAddContact(c *gin.Context) {
	var req addContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	contact, err := s.dir.AddContact(c.Request.Context(), GetUserID(c), req.Name, req.PhoneNumber)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contact)
}

func (s *UserService) handleListContacts(c *gin.Context) {
	contacts, err := s.dir.Contacts(c.Request.Context(), GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contacts)
}
