package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"valuation/server/internal/estimation"
	"valuation/server/internal/geocoding"
	"valuation/server/internal/models"
	"valuation/server/internal/notification"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Estimator values a property
type Estimator interface {
	Estimate(ctx context.Context, q models.PropertyQuery) (models.EstimateResult, error)
}

// Suggester completes partial addresses
type Suggester interface {
	Suggest(ctx context.Context, query string, limit int) ([]geocoding.Suggestion, error)
}

// Dispatcher queues team notifications
type Dispatcher interface {
	Dispatch(msg notification.Message) bool
}

type Options struct {
	// Also notify the team after every successful estimate
	NotifyOnEstimate bool

	SuggestTimeout time.Duration
}

type Handler struct {
	estimator  Estimator
	suggester  Suggester
	dispatcher Dispatcher
	opts       Options
	logger     *logrus.Logger
}

type EstimationEmailRequest struct {
	PropertyData     *models.PropertySubmission `json:"propertyData" binding:"required"`
	EstimationResult *models.EstimateResult     `json:"estimationResult" binding:"required"`
}

type ContactRequest struct {
	ContactInfo    *models.ContactInfo           `json:"contactInfo" binding:"required"`
	EstimationData *notification.EstimateSummary `json:"estimationData"`
}

type NotificationResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

func NewHandler(estimator Estimator, suggester Suggester, dispatcher Dispatcher, opts Options, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.SuggestTimeout <= 0 {
		opts.SuggestTimeout = estimation.DefaultCallTimeout
	}

	return &Handler{
		estimator:  estimator,
		suggester:  suggester,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
	}
}

func (h *Handler) requestLogger(c *gin.Context) *logrus.Entry {
	return h.logger.WithField("request_id", c.GetString(requestIDKey))
}

// Estimate handles POST /api/estimate
func (h *Handler) Estimate(c *gin.Context) {
	log := h.requestLogger(c)

	var req estimation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		log.WithError(err).Warn("Invalid estimate request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	query, err := req.Query()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": estimation.PublicMessage(err)})
		return
	}

	result, err := h.estimator.Estimate(c.Request.Context(), query)
	if err != nil {
		entry := log.WithError(err).WithField("kind", estimation.KindOf(err).String())
		if errors.Is(err, estimation.ErrUpstream) {
			entry.Error("Estimation failed")
		} else {
			entry.Warn("Estimation rejected")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": estimation.PublicMessage(err)})
		return
	}

	if h.opts.NotifyOnEstimate && h.dispatcher != nil {
		h.dispatcher.Dispatch(notification.EstimationMessage(submissionFromRequest(req), result))
	}

	c.JSON(http.StatusOK, result)
}

func submissionFromRequest(req estimation.Request) models.PropertySubmission {
	s := models.PropertySubmission{
		Type:       req.Type,
		Address:    req.Address,
		LivingArea: req.LivingArea,
		Rooms:      req.Rooms,
	}
	s.Details.Floor = req.Floor
	s.Features.Condition = req.Condition
	s.Features.ConstructionYear = req.ConstructionYear
	if req.HasElevator != nil {
		s.Features.HasElevator = *req.HasElevator
	}
	return s
}

// Preflight answers OPTIONS requests that carry no CORS headers with the
// methods of the route
func Preflight(methods []string) gin.HandlerFunc {
	allow := strings.Join(methods, ", ")
	return func(c *gin.Context) {
		header := c.Writer.Header()
		if header.Get("Access-Control-Allow-Origin") == "" {
			header.Set("Access-Control-Allow-Origin", "*")
			header.Set("Access-Control-Allow-Methods", allow)
			header.Set("Access-Control-Allow-Headers", strings.Join(allowedHeaders, ", "))
		}
		c.Status(http.StatusNoContent)
	}
}

// EstimationEmail handles POST /api/estimation-email
func (h *Handler) EstimationEmail(c *gin.Context) {
	var req EstimationEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.requestLogger(c).WithError(err).Warn("Invalid estimation email request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "fields": fieldErrors(err)})
		return
	}

	h.notify(c, notification.EstimationMessage(*req.PropertyData, *req.EstimationResult))
}

// ContactRequest handles POST /api/contact-request
func (h *Handler) ContactRequest(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.requestLogger(c).WithError(err).Warn("Invalid contact request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Informations de contact incomplètes", "fields": fieldErrors(err)})
		return
	}

	h.notify(c, notification.ContactMessage(*req.ContactInfo, req.EstimationData))
}

func (h *Handler) notify(c *gin.Context, msg notification.Message) {
	if h.dispatcher == nil || !h.dispatcher.Dispatch(msg) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Une erreur est survenue"})
		return
	}
	c.JSON(http.StatusOK, NotificationResponse{Success: true, ID: msg.ID})
}

// AddressSuggestions handles GET /api/address-suggestions
func (h *Handler) AddressSuggestions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(geocoding.DefaultSuggest)))
	if err != nil || limit <= 0 {
		limit = geocoding.DefaultSuggest
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.SuggestTimeout)
	defer cancel()

	suggestions, err := h.suggester.Suggest(ctx, c.Query("q"), limit)
	if err != nil && !errors.Is(err, geocoding.ErrNotFound) {
		h.requestLogger(c).WithError(err).Error("Failed to get address suggestions")
		c.JSON(http.StatusBadGateway, gin.H{"error": "address suggestions unavailable"})
		return
	}
	if suggestions == nil {
		suggestions = []geocoding.Suggestion{}
	}

	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fieldErrors lists the invalid fields of a binding error, by JSON name
func fieldErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Drop the request struct name
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		fields = append(fields, ns+": "+fe.Tag())
	}
	return fields
}

// jsonFieldName makes validation errors report JSON names instead of Go names
func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}
