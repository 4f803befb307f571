package adminapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relaymesh/signalhub/internal/signing"
	"github.com/relaymesh/signalhub/internal/store"
)

// Controller adapts AdminAPI's operations to Gin handlers, following the
// teacher's RoomController shape: a thin struct wrapping the interactor.
// Every route is POST /api/admin/<verb>, matching spec.md §6's
// `POST /api/admin/*` (admin-signed) verb-style contract literally rather
// than the RESTful path+verb combinations the rest of the tree favors.
type Controller struct {
	api *AdminAPI
}

func NewController(api *AdminAPI) *Controller {
	return &Controller{api: api}
}

// Register mounts every AdminAPI route under group.
func (c *Controller) Register(group *gin.RouterGroup) {
	group.POST("/get-room-info", c.getRoomInfo)
	group.POST("/delete-room", c.deleteRoom)
	group.POST("/get-recent-attachments", c.getRecentAttachments)
	group.POST("/create-test-data", c.createTestData)
	group.POST("/block-user", c.blockUser)
	group.POST("/attachments/:id/delete", c.deleteAttachment)
}

// callerKey verifies the request's X-Public-Key/X-Signature headers
// (internal/signing) and returns the caller's public key. AdminAPI's own
// authorize() still checks it against the configured admin key — this
// verification only proves the caller controls the key it claims.
func callerKey(ctx *gin.Context) (string, bool) {
	pub, ok, err := signing.VerifyRequest(ctx.Request)
	if err != nil || !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid request signature"})
		return "", false
	}
	return pub, true
}

func (c *Controller) respondErr(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		ctx.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, store.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (c *Controller) deleteRoom(ctx *gin.Context) {
	key, ok := callerKey(ctx)
	if !ok {
		return
	}
	var req struct {
		Room string `json:"room" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	deleted, err := c.api.DeleteRoom(ctx.Request.Context(), key, req.Room)
	if err != nil {
		c.respondErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (c *Controller) deleteAttachment(ctx *gin.Context) {
	key, ok := callerKey(ctx)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid attachment id"})
		return
	}
	deleted, err := c.api.DeleteAttachment(ctx.Request.Context(), key, id)
	if err != nil {
		c.respondErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (c *Controller) blockUser(ctx *gin.Context) {
	key, ok := callerKey(ctx)
	if !ok {
		return
	}
	var req struct {
		PublicKey string `json:"publicKey" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := c.api.BlockUser(ctx.Request.Context(), key, req.PublicKey); err != nil {
		c.respondErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"blocked": true})
}

func (c *Controller) getRoomInfo(ctx *gin.Context) {
	key, ok := callerKey(ctx)
	if !ok {
		return
	}
	info, err := c.api.GetRoomInfo(ctx.Request.Context(), key)
	if err != nil {
		c.respondErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": info})
}

func (c *Controller) getRecentAttachments(ctx *gin.Context) {
	key, ok := callerKey(ctx)
	if !ok {
		return
	}
	attachments, err := c.api.GetRecentAttachments(ctx.Request.Context(), key)
	if err != nil {
		c.respondErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"attachments": attachments})
}

func (c *Controller) createTestData(ctx *gin.Context) {
	key, ok := callerKey(ctx)
	if !ok {
		return
	}
	n, err := c.api.CreateTestData(ctx.Request.Context(), key, time.Now())
	if err != nil {
		c.respondErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"created": n})
}
