// Package http assembles the Gin engine binding SignalingHub's websocket
// upgrade route to AdminAPI and HistoryAPI's REST surfaces, the way the
// teacher's SetupRouter assembled RoomController and UserController.
package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/relaymesh/signalhub/internal/adminapi"
	"github.com/relaymesh/signalhub/internal/historyapi"
	"github.com/relaymesh/signalhub/internal/hub"
	"github.com/relaymesh/signalhub/internal/messagesapi"
)

// Deps bundles the components NewRouter wires together, one per component
// letter spec.md §2 names.
type Deps struct {
	Hub         *hub.Hub
	Admin       *adminapi.Controller
	History     *historyapi.Controller
	Messages    *messagesapi.Controller
	STUNServers []string
}

func NewRouter(deps Deps) *gin.Engine {
	router := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
		"X-Public-Key",
		"X-Signature",
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	router.GET("/api/webrtc-config", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"stunServers": deps.STUNServers})
	})

	router.GET("/ws", func(ctx *gin.Context) {
		deps.Hub.ServeWS(ctx.Writer, ctx.Request)
	})

	api := router.Group("/api")
	if deps.Admin != nil {
		deps.Admin.Register(api.Group("/admin"))
	}
	if deps.History != nil {
		deps.History.Register(api)
	}
	if deps.Messages != nil {
		deps.Messages.Register(api)
	}

	return router
}
