package http

import (
	"context"

	"github.com/geocoder89/hotchoc/internal/http/handlers"
	"github.com/geocoder89/hotchoc/internal/http/middlewares"
	"github.com/geocoder89/hotchoc/internal/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "hotchoc"

type RouterDeps struct {
	Env string

	Auth    handlers.AuthService
	Ratings handlers.RatingService
	Tokens  middlewares.TokenVerifier

	// Ping backs /readyz; nil means always ready.
	Ping func(ctx context.Context) error

	// Prom is optional; without it there is no /metrics route.
	Prom *observability.Prom

	MaxBodyBytes       int64
	CORSAllowedOrigins []string
	AuthRateLimit      int
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(deps.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health
	h := handlers.NewHealthHandler(deps.Ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Prom != nil {
		r.GET("/metrics", gin.WrapH(deps.Prom.Handler()))
	}

	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	// Wire up handlers
	var observer handlers.AuthObserver
	if deps.Prom != nil {
		observer = deps.Prom
	}
	authHandler := handlers.NewAuthHandler(deps.Auth, observer)
	ratingsHandler := handlers.NewRatingsHandler(deps.Ratings)

	authMW := middlewares.NewAuthMiddleware(deps.Tokens)
	limiter := middlewares.NewRateLimiter(deps.AuthRateLimit)

	api := r.Group("/api")

	// public
	authLimited := limiter.RateLimiterMiddleware(middlewares.KeyByIP)
	api.POST("/register", authLimited, authHandler.Register)
	api.POST("/login", authLimited, authHandler.Login)
	api.GET("/ratings", ratingsHandler.List)
	api.GET("/ratings/:id", ratingsHandler.Get)

	// protected
	protected := api.Group("")
	protected.Use(authMW.RequireAuth())
	protected.GET("/user/ratings", ratingsHandler.ListMine)
	protected.GET("/user/stats", ratingsHandler.Stats)
	protected.POST("/ratings", ratingsHandler.Create)
	protected.DELETE("/ratings/:id", ratingsHandler.Delete)

	return r
}
