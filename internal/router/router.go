package router

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/voter-support-api/internal/middleware"
	"github.com/noah-isme/voter-support-api/internal/models"
	"github.com/noah-isme/voter-support-api/internal/service"
	"github.com/noah-isme/voter-support-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/voter-support-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/voter-support-api/pkg/middleware/requestid"
)

const supportBasePath = "/chat-support"

// ChatSupportRoutes is the handler set mounted under /chat-support.
type ChatSupportRoutes interface {
	Submit(c *gin.Context)
	FAQs(c *gin.Context)
	FAQCategories(c *gin.Context)
	Statistics(c *gin.Context)
	Export(c *gin.Context)
	BulkUpdate(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	UpdateStatus(c *gin.Context)
	Delete(c *gin.Context)
}

// ProbeRoutes serves liveness, readiness and metrics.
type ProbeRoutes interface {
	Health(c *gin.Context)
	Ready(c *gin.Context)
	Prometheus(c *gin.Context)
}

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// Options configures the HTTP engine.
type Options struct {
	Logger         *zap.Logger
	Tokens         tokenValidator
	Metrics        *service.MetricsService
	AllowedOrigins []string
	APIPrefix      string
	EnableMetrics  bool
	EnableSwagger  bool
}

// New builds the gin engine with the shared middleware stack and every route.
func New(opts Options, support ChatSupportRoutes, probes ProbeRoutes) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Metrics))

	r.GET("/health", probes.Health)
	r.GET("/ready", probes.Ready)
	if opts.EnableMetrics {
		r.GET("/metrics", probes.Prometheus)
	}
	if opts.EnableSwagger {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(normalizePrefix(opts.APIPrefix))
	RegisterChatSupportRoutes(api, support, middleware.JWT(opts.Tokens))
	return r
}

// RegisterChatSupportRoutes mounts the support endpoints. Literal paths are
// registered before /:id so the parameter never captures them.
func RegisterChatSupportRoutes(parent *gin.RouterGroup, h ChatSupportRoutes, authenticate gin.HandlerFunc) {
	group := parent.Group(supportBasePath)
	group.Use(middleware.WithResponseMeta())

	group.POST("", h.Submit)
	group.GET("/faqs", h.FAQs)
	group.GET("/faqs/categories", h.FAQCategories)

	admin := group.Group("")
	admin.Use(authenticate, middleware.RequireSupportAdmin())
	admin.GET("/stats/summary", h.Statistics)
	admin.GET("/export", h.Export)
	admin.POST("/bulk-update", h.BulkUpdate)
	admin.GET("", h.List)
	admin.GET("/:id", h.Get)
	admin.PUT("/:id", h.UpdateStatus)
	admin.DELETE("/:id", h.Delete)
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}
