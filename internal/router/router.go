package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lojamoda/storefront-auth/config"
	"github.com/lojamoda/storefront-auth/internal/app/controller"
	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/internal/metrics"
	"github.com/lojamoda/storefront-auth/internal/middleware"
)

type Router struct {
	authController  *controller.AuthController
	adminController *controller.AdminController
	authMiddleware  *middleware.AuthMiddleware
	config          *config.Config
}

func NewRouter(
	authController *controller.AuthController,
	adminController *controller.AdminController,
	authMiddleware *middleware.AuthMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		authController:  authController,
		adminController: adminController,
		authMiddleware:  authMiddleware,
		config:          cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(metrics.Middleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
		})
	})

	if r.config.Server.MetricsEnabled {
		router.GET("/metrics", metrics.Handler())
	}

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authController.Register)
			auth.POST("/send-2fa-code", r.authController.SendTwoFactorCode)
			auth.POST("/verify-2fa-code", r.authController.VerifyTwoFactorCode)
			auth.POST("/refresh", r.authController.RefreshToken)
			auth.GET("/me", r.authMiddleware.Authenticate(), r.authController.GetMe)
			auth.POST("/logout", r.authMiddleware.Authenticate(), r.authController.Logout)
		}

		admin := api.Group("/admin")
		admin.Use(r.authMiddleware.Authenticate(), r.authMiddleware.RequireRole(model.RoleAdmin))
		{
			admin.POST("/two-factor/cleanup", r.adminController.RunTwoFactorCleanup)
		}
	}

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

		if allowed && origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Retry-After, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
