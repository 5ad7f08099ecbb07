package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/content-analyzer-go/internal/config"
	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/internal/observer"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

const correlationHeader = "X-Correlation-ID"

// Pipeline is the analysis surface served over HTTP
type Pipeline interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) *models.AnalysisResult
	AnalyzeBatch(ctx context.Context, refs []string, opts models.AnalysisOptions, cfg models.BatchConfig) ([]models.BatchOutcome, error)
	StartExperiment(cfg models.ExperimentConfig) (string, error)
	GetExperimentReport(id string) (models.ExperimentReport, error)
	ConcludeExperiment(ctx context.Context, id string) ([]models.VariantResult, error)
	ActiveExperiments() []string
	GetOptimizationStats() models.OptimizationStats
	Narrate(ctx context.Context, text string, voice provider.VoiceOptions) (*provider.AudioHandle, error)
}

// Extras are optional collaborators; nil members disable their routes
type Extras struct {
	Hub      *observer.WebSocketHub
	Events   *observer.MetricsObserver
	Gatherer prometheus.Gatherer
	Logger   *logrus.Logger
}

// BatchResponse is returned by POST /analyze/batch
type BatchResponse struct {
	Outcomes  []models.BatchOutcome `json:"outcomes"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Skipped   int                   `json:"skipped"`
}

type handler struct {
	pipeline Pipeline
	cfg      *config.Config
	extras   Extras
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

func NewHandler(pipeline Pipeline, cfg *config.Config, extras Extras) http.Handler {
	if extras.Logger == nil {
		extras.Logger = logrus.StandardLogger()
	}
	h := &handler{
		pipeline: pipeline,
		cfg:      cfg,
		extras:   extras,
		logger:   extras.Logger,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}

	r := gin.New()

	// Add middleware
	r.Use(
		gin.Recovery(),
		requestLogger(h.logger),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics", "/narrate"})),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		h.errorHandler(),
	)

	// Configure routes
	r.GET("/health", h.healthCheck)
	r.POST("/analyze", h.analyze)
	r.POST("/analyze/batch", h.analyzeBatch)
	r.GET("/experiments", h.listExperiments)
	r.POST("/experiments", h.startExperiment)
	r.GET("/experiments/:id", h.experimentReport)
	r.POST("/experiments/:id/conclude", h.concludeExperiment)
	r.GET("/stats", h.stats)
	r.POST("/narrate", h.narrate)
	if extras.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(extras.Gatherer, promhttp.HandlerOpts{})))
	}
	if extras.Hub != nil {
		r.GET("/ws/anomalies", h.anomalies)
	}

	return r
}

func (h *handler) analyze(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	var body models.AnalyzeContentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, apperrors.NewValidationError("invalid request format", err))
		return
	}

	req := models.AnalysisRequest{
		ContentRef:    strings.TrimSpace(body.ContentRef),
		ContentHash:   strings.TrimSpace(body.ContentHash),
		Options:       optionsOrDefault(body.Options),
		CorrelationID: correlationID(c),
	}
	result := h.pipeline.Analyze(ctx, req)

	status := http.StatusOK
	if !result.Success {
		status = statusForFailure(result.Error)
	}
	c.JSON(status, result)
}

func (h *handler) analyzeBatch(c *gin.Context) {
	var body models.AnalyzeBatchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, apperrors.NewValidationError("invalid request format", err))
		return
	}

	outcomes, err := h.pipeline.AnalyzeBatch(c.Request.Context(), body.ContentRefs, optionsOrDefault(body.Options), body.Batch)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := BatchResponse{Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case models.BatchSucceeded:
			resp.Succeeded++
		case models.BatchFailed:
			resp.Failed++
		default:
			resp.Skipped++
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) listExperiments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active": h.pipeline.ActiveExperiments()})
}

func (h *handler) startExperiment(c *gin.Context) {
	var cfg models.ExperimentConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		h.respondError(c, apperrors.NewValidationError("invalid experiment config", err))
		return
	}
	id, err := h.pipeline.StartExperiment(cfg)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.StartExperimentResponse{ExperimentID: id})
}

func (h *handler) experimentReport(c *gin.Context) {
	report, err := h.pipeline.GetExperimentReport(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) concludeExperiment(c *gin.Context) {
	results, err := h.pipeline.ConcludeExperiment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiment_id": c.Param("id"), "variants": results})
}

func (h *handler) stats(c *gin.Context) {
	resp := gin.H{"optimization": h.pipeline.GetOptimizationStats()}
	if h.extras.Events != nil {
		resp["events"] = h.extras.Events.GetMetrics()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) narrate(c *gin.Context) {
	var body models.NarrateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, apperrors.NewValidationError("invalid request format", err))
		return
	}
	audio, err := h.pipeline.Narrate(c.Request.Context(), body.Text, provider.VoiceOptions{
		Voice:  body.Voice,
		Format: body.Format,
		Speed:  body.Speed,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, audio.ContentType, audio.Data)
}

func (h *handler) anomalies(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).WithField("ip", c.ClientIP()).Warn("WebSocket upgrade failed")
		return
	}
	h.extras.Hub.Register(conn)
}

func (h *handler) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
	if h.extras.Hub != nil {
		resp["ws_clients"] = h.extras.Hub.ConnectedClients()
	}
	c.JSON(http.StatusOK, resp)
}

// Middleware and helper functions
func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}).Info("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func (h *handler) errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			h.respondError(c, c.Errors.Last().Err)
		}
	}
}

func optionsOrDefault(opts *models.AnalysisOptions) models.AnalysisOptions {
	if opts == nil {
		return models.DefaultOptions()
	}
	return *opts
}

func correlationID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(correlationHeader)); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Header(correlationHeader, id)
	return id
}

// statusForFailure maps a normalised failure code onto an HTTP status
func statusForFailure(f *models.Failure) int {
	if f == nil {
		return http.StatusInternalServerError
	}
	switch code := f.Code; {
	case code == "VALIDATION":
		return http.StatusBadRequest
	case code == "NOT_FOUND":
		return http.StatusNotFound
	case code == "TIMEOUT", code == "PROVIDER_TIMEOUT":
		return http.StatusGatewayTimeout
	case code == "PROVIDER_RATE_LIMITED":
		return http.StatusTooManyRequests
	case code == "EXHAUSTED_RETRIES":
		return http.StatusServiceUnavailable
	case strings.HasPrefix(code, "PROVIDER_"), code == "NETWORK":
		return http.StatusBadGateway
	case code == "CANCELLED":
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) respondError(c *gin.Context, err error) {
	failure := apperrors.ToFailure(err)
	code := apperrors.GetStatusCode(err)

	// Log the error with context
	h.logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"code":        failure.Code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Success: false,
		Code:    failure.Code,
		Message: failure.Message,
	})
}
