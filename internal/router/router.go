package router

import (
	"github.com/gin-gonic/gin"
	"github.com/movira/transreg-backend/config"
	"github.com/movira/transreg-backend/internal/app/controller"
	"github.com/movira/transreg-backend/internal/app/model"
	"github.com/movira/transreg-backend/internal/middleware"
	"github.com/movira/transreg-backend/internal/websocket"
)

type Router struct {
	documentController *controller.DocumentController
	exportController   *controller.ExportController
	authMiddleware     *middleware.AuthMiddleware
	hub                *websocket.Hub
	config             *config.Config
}

func NewRouter(
	documentController *controller.DocumentController,
	exportController *controller.ExportController,
	authMiddleware *middleware.AuthMiddleware,
	hub *websocket.Hub,
	cfg *config.Config,
) *Router {
	return &Router{
		documentController: documentController,
		exportController:   exportController,
		authMiddleware:     authMiddleware,
		hub:                hub,
		config:             cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"message": "TRANSREG API is running",
		})
	})

	v1 := router.Group("/api/v1")
	{
		documents := v1.Group("/documents")
		documents.Use(r.authMiddleware.Authenticate())
		{
			documents.POST("", r.documentController.Upload)
			documents.POST("/batch", r.documentController.UploadBatch)

			documents.GET("", r.documentController.List)
			documents.GET("/statistics", r.documentController.Statistics)
			documents.GET("/export", r.exportController.Export)
			documents.GET("/:id", r.documentController.Get)
			documents.GET("/:id/download", r.documentController.Download)

			documents.PUT("/:id/verify",
				r.authMiddleware.RequireRole(model.RoleReviewer, model.RoleAdmin),
				r.documentController.Verify,
			)
			documents.POST("/verify/batch",
				r.authMiddleware.RequireRole(model.RoleReviewer, model.RoleAdmin),
				r.documentController.VerifyBatch,
			)

			documents.POST("/process/batch", r.documentController.ProcessBatch)
			documents.PUT("/:id/processing", r.documentController.UpdateProcessingStatus)
			documents.PATCH("/:id/metadata", r.documentController.PatchMetadata)

			documents.DELETE("/:id",
				r.authMiddleware.RequireRole(model.RoleReviewer, model.RoleAdmin),
				r.documentController.Delete,
			)
			documents.POST("/delete/batch",
				r.authMiddleware.RequireRole(model.RoleReviewer, model.RoleAdmin),
				r.documentController.DeleteBatch,
			)
		}
	}

	// Verification event feed for reviewer dashboards. Token is accepted via
	// query parameter because browsers cannot set websocket headers.
	router.GET("/ws/verifications",
		r.authMiddleware.Authenticate(),
		websocket.ServeWS(r.hub),
	)

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
