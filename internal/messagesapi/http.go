package messagesapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/relaymesh/signalhub/internal/domain"
	"github.com/relaymesh/signalhub/internal/signing"
)

// Controller adapts MessagesAPI to Gin routes, the same thin
// wraps-the-interactor shape as adminapi.Controller and historyapi.Controller.
type Controller struct {
	api *MessagesAPI
}

func NewController(api *MessagesAPI) *Controller {
	return &Controller{api: api}
}

// Register mounts the two routes spec.md §6 names outside the admin group:
// POST /rooms/:room/send-messages and POST /delete-message.
func (c *Controller) Register(group *gin.RouterGroup) {
	group.POST("/rooms/:room/send-messages", c.sendMessages)
	group.POST("/delete-message", c.deleteMessage)
}

func (c *Controller) sendMessages(ctx *gin.Context) {
	// The request itself carries an X-Public-Key/X-Signature pair
	// (spec.md §6's "signed" HTTP endpoints all verify before dispatch);
	// each message's own signature is what actually authorizes persisting
	// it, verified inside SendMessages.
	if _, ok, err := signing.VerifyRequest(ctx.Request); err != nil || !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid request signature"})
		return
	}

	var req struct {
		Messages []domain.ChatMessage `json:"messages" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	allOk, err := c.api.SendMessages(ctx.Request.Context(), ctx.Param("room"), req.Messages)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"allOk": allOk})
}

func (c *Controller) deleteMessage(ctx *gin.Context) {
	callerKey, ok, err := signing.VerifyRequest(ctx.Request)
	if err != nil || !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid request signature"})
		return
	}

	var req struct {
		MessageID string `json:"messageId" binding:"required"`
		RoomName  string `json:"roomName" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	deleted, err := c.api.DeleteMessage(ctx.Request.Context(), callerKey, req.RoomName, req.MessageID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
