package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

var (
	formMethods    = []string{"POST", "OPTIONS"}
	lookupMethods  = []string{"GET", "OPTIONS"}
	allowedHeaders = []string{"Content-Type", "Authorization"}
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

// NewRouter builds the gin engine with the middleware stack and all routes
func NewRouter(handler *Handler, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))

	SetupRoutes(router, handler)
	return router
}

// corsFor allows any origin to call routes with the given methods
func corsFor(methods []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    methods,
		AllowHeaders:    allowedHeaders,
		MaxAge:          12 * time.Hour,
	})
}

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/healthz", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")

	forms := api.Group("", corsFor(formMethods))
	{
		forms.POST("/estimate", handler.Estimate)
		forms.OPTIONS("/estimate", Preflight(formMethods))
		forms.POST("/estimation-email", handler.EstimationEmail)
		forms.OPTIONS("/estimation-email", Preflight(formMethods))
		forms.POST("/contact-request", handler.ContactRequest)
		forms.OPTIONS("/contact-request", Preflight(formMethods))
	}

	lookup := api.Group("", corsFor(lookupMethods))
	{
		lookup.GET("/address-suggestions", handler.AddressSuggestions)
		lookup.OPTIONS("/address-suggestions", Preflight(lookupMethods))
	}
}

// RequestLogger tags each request with an ID and logs it once completed
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("Request completed")
		case c.Writer.Status() >= 400:
			entry.Warn("Request completed")
		default:
			entry.Info("Request completed")
		}
	}
}
