// Package router wires the storefront HTTP surface onto gin.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/logger"
	"storefront/internal/middleware"
	"storefront/internal/order"
)

// Deps 是路由层依赖。Redis 为 nil 时不启用下单限流。
type Deps struct {
	Catalog *catalog.Store
	Orders  *order.Service
	Redis   *rd.Client
	Config  config.AppConfig
	Log     *zap.Logger
}

// New 创建带全局中间件的 gin.Engine 并注册路由。
func New(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := gin.New()
	r.Use(
		logger.RequestID(),
		otelgin.Middleware(d.Config.Telemetry.ServiceName),
		logger.GinMiddleware(d.Log),
		logger.Recovery(d.Log),
	)
	Setup(r, d)
	return r
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	h := &handlers{
		catalog: d.Catalog,
		orders:  d.Orders,
		debug:   d.Config.Debug && !d.Config.IsProduction(),
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := r.Group("/api")
	api.GET("/products", h.listProducts)
	api.GET("/products/:product_id/stock", h.productStock)

	checkout := []gin.HandlerFunc{h.createOrder}
	if d.Redis != nil {
		limit := middleware.CheckoutRateLimit(d.Redis, d.Config.Checkout.RateLimit, d.Config.Checkout.RateWindow, d.Log.Named("ratelimit"))
		checkout = append([]gin.HandlerFunc{limit}, checkout...)
	}
	api.POST("/orders", checkout...)
	api.GET("/orders/:unique_id", h.showOrder)

	admin := api.Group("/admin", middleware.AdminToken(d.Config.AdminToken))
	admin.POST("/products", h.createProduct)
	admin.PUT("/orders/:id/status", h.updateOrderStatus)
}

type handlers struct {
	catalog *catalog.Store
	orders  *order.Service
	debug   bool
}
