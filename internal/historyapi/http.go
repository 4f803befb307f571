package historyapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Controller adapts HistoryAPI to Gin routes, mirroring the teacher's
// RoomController: a thin struct wrapping the interactor. Paths, query
// params, and response keys follow spec.md §6's HTTP endpoint contract
// literally.
type Controller struct {
	api *HistoryAPI
}

func NewController(api *HistoryAPI) *Controller {
	return &Controller{api: api}
}

// Register mounts every HistoryAPI route under group. None of these
// require a signature (spec.md §4.8).
func (c *Controller) Register(group *gin.RouterGroup) {
	group.GET("/rooms/:room/message-ids", c.messageIDs)
	group.POST("/rooms/:room/get-messages-by-id", c.getMessagesByID)
	group.GET("/messages", c.messages)
	group.GET("/attachments/:id", c.attachment)
}

func (c *Controller) messageIDs(ctx *gin.Context) {
	var sinceTs *int64
	if daysStr := ctx.Query("daysOfHistory"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid daysOfHistory"})
			return
		}
		days = ClampWindowDays(days)
		since := time.Now().AddDate(0, 0, -days).UnixMilli()
		sinceTs = &since
	}

	ids, err := c.api.MessageIDs(ctx.Request.Context(), ctx.Param("room"), sinceTs)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"messageIds": ids})
}

func (c *Controller) getMessagesByID(ctx *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	msgs, err := c.api.MessagesByIDs(ctx.Request.Context(), ctx.Param("room"), req.IDs)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (c *Controller) messages(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	offset, _ := strconv.Atoi(ctx.Query("offset"))
	msgs, err := c.api.History(ctx.Request.Context(), ctx.Query("roomName"), limit, offset)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (c *Controller) attachment(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid attachment id"})
		return
	}
	name, mime, data, err := c.api.Attachment(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
		return
	}
	ctx.Header("Content-Disposition", `inline; filename="`+name+`"`)
	ctx.Data(http.StatusOK, mime, data)
}
