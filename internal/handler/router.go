package handler

import (
	"net/http"

	"procurement/internal/config"
	"procurement/internal/middleware"
	"procurement/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

type Handlers struct {
	Users         *UserHandler
	Requests      *RequestHandler
	Approvals     *ApprovalHandler
	Notifications *NotificationHandler
	Inventory     *InventoryHandler
}

// NewRouter mounts every API route. Everything under /api except login requires a token.
func NewRouter(cfg *config.Config, h Handlers, hub *websocket.Hub, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "sessions": hub.Count()})
	})

	router.GET("/ws", hub.ServeWs)

	api := router.Group("/api")
	h.Users.RegisterRoutes(api)

	protected := api.Group("", middleware.Authenticate([]byte(cfg.JWTSecret)))
	h.Requests.RegisterRoutes(protected)
	h.Approvals.RegisterRoutes(protected)
	h.Notifications.RegisterRoutes(protected)
	h.Inventory.RegisterRoutes(protected)

	return router
}
