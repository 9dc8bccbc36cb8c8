package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/commerce-service/pkg/middleware"
)

type RouterConfig struct {
	Products       *ProductHandler
	Users          *UserHandler
	Orders         *OrderHandler
	RequestTimeout time.Duration
	// Ping reports backend health; nil means always healthy.
	Ping func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/users", cfg.Users.CreateUser)
		v1.GET("/users", cfg.Users.ListUsers)
		v1.GET("/users/:id", cfg.Users.GetUser)
		v1.PATCH("/users/:id", cfg.Users.UpdateUser)
		v1.DELETE("/users/:id", cfg.Users.DeleteUser)

		v1.POST("/products", cfg.Products.CreateProduct)
		v1.GET("/products", cfg.Products.ListProducts)
		v1.GET("/products/:id", cfg.Products.GetProduct)
		v1.PATCH("/products/:id", cfg.Products.UpdateProduct)
		v1.DELETE("/products/:id", cfg.Products.DeleteProduct)
		v1.POST("/products/:id/restock", cfg.Products.Restock)

		v1.POST("/orders", cfg.Orders.PlaceOrder)
		v1.GET("/orders", cfg.Orders.ListOrders)
		v1.GET("/orders/:id", cfg.Orders.GetOrder)
		v1.PATCH("/orders/:id", cfg.Orders.UpdateOrder)

		v1.GET("/health", func(c *gin.Context) {
			if cfg.Ping != nil {
				if err := cfg.Ping(c.Request.Context()); err != nil {
					logger.Warn("Health check failed", zap.Error(err))
					c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
					return
				}
			}
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})
	}

	return router
}
