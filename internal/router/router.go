package router

import (
	"net/http"

	"food_rescue/internal/config"
	"food_rescue/internal/ledger"
	"food_rescue/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// server 持有各 handler 共享的依赖。rdb 为 nil 时关闭限流和幂等键。
type server struct {
	ledger *ledger.Ledger
	rdb    *rd.Client
	cfg    config.AppConfig
	log    *zap.Logger
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, l *ledger.Ledger, rdb *rd.Client, cfg config.AppConfig, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &server{ledger: l, rdb: rdb, cfg: cfg, log: log}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Authenticate([]byte(cfg.JWTSecret)))
	providers := middleware.RequireActor(middleware.RoleProvider, middleware.RoleAdmin)
	recipients := middleware.RequireActor(middleware.RoleRecipient)

	// Listings
	api.GET("/listings", listAvailableListings(s))
	api.GET("/listings/expiring", listExpiringSoon(s))
	api.GET("/listings/:id", getListing(s))
	api.GET("/listings/:id/balance", listingBalance(s))
	api.POST("/listings", providers, createListing(s))
	api.PUT("/listings/:id", providers, updateListing(s))
	api.POST("/listings/:id/publish", providers, publishListing(s))
	api.POST("/listings/:id/withdraw", providers, withdrawListing(s))
	api.DELETE("/listings/:id", providers, deleteListing(s))

	// Reservations
	reserve := []gin.HandlerFunc{recipients}
	if rdb != nil {
		reserve = append(reserve, middleware.RedisRateLimit(rdb, "reserve", cfg.ReserveRateLimit, cfg.ReserveRateWindow, log))
	}
	api.POST("/reservations", append(reserve, createReservation(s))...)
	api.GET("/reservations/user", recipients, listRecipientReservations(s))
	api.GET("/reservations/:id", middleware.RequireActor(), getReservation(s))
	api.PUT("/reservations/:id", middleware.RequireActor(), updateReservationStatus(s))
	api.PUT("/reservations/:id/pickup-time", recipients, updatePickupTime(s))
	api.POST("/reservations/:id/check-expiration", middleware.RequireActor(), checkExpiration(s))

	// Admin
	admin := r.Group("/api/admin", middleware.AdminToken(cfg.AdminToken))
	admin.POST("/sweep", sweepExpired(s))
	admin.GET("/stats", stats(s))
	admin.GET("/reservations/pending", listPendingReservations(s))
}
