package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-flood-risk/internal/apperrors"
	"github.com/mr1hm/go-flood-risk/internal/models"
	"github.com/mr1hm/go-flood-risk/internal/predict"
)

type Predictor interface {
	Predict(ctx context.Context, locality string, horizon models.Horizon) (*models.PredictionResult, error)
	PredictBatch(ctx context.Context, localities []string, horizon models.Horizon) []models.BatchItem
	Context(ctx context.Context, locality string) (*models.LocalityContext, error)
	Localities(ctx context.Context) ([]string, error)
}

// Stream is the source of completed predictions for SSE clients.
type Stream interface {
	Subscribe() (uint64, <-chan *models.PredictionResult)
	Unsubscribe(id uint64)
}

type Handler struct {
	predictor Predictor
	stream    Stream
	maxBatch  int
	logger    *slog.Logger
}

func NewHandler(predictor Predictor, stream Stream, maxBatch int, logger *slog.Logger) *Handler {
	return &Handler{
		predictor: predictor,
		stream:    stream,
		maxBatch:  maxBatch,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/localities", h.getLocalities)
	v1.GET("/localities/:locality/context", h.getContext)
	v1.GET("/predict/:locality", h.predict)
	v1.POST("/predict/batch", h.predictBatch)
	if h.stream != nil {
		v1.GET("/predictions/stream", h.streamPredictions)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getLocalities(c *gin.Context) {
	localities, err := h.predictor.Localities(c.Request.Context())
	if err != nil {
		h.logger.Error("listing localities failed", "error", err)
		h.writeError(c, apperrors.Wrap(apperrors.CodeInternal, "failed to list localities", err))
		return
	}
	if localities == nil {
		localities = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"localities": localities,
		"total":      len(localities),
	})
}

func (h *Handler) predict(c *gin.Context) {
	horizon, err := parseHorizonQuery(c.Query("horizon"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.predictor.Predict(c.Request.Context(), c.Param("locality"), horizon)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type batchRequest struct {
	Localities []string `json:"localities"`
	Horizon    int      `json:"horizon"`
}

type batchResponse struct {
	Results   []models.BatchItem `json:"results"`
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
}

func (h *Handler) predictBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, apperrors.Wrap(apperrors.CodeInvalidRequest, "invalid request body", err))
		return
	}

	localities := make([]string, 0, len(req.Localities))
	for _, l := range req.Localities {
		if l = strings.TrimSpace(l); l != "" {
			localities = append(localities, l)
		}
	}
	if len(localities) == 0 {
		h.writeError(c, apperrors.Wrap(apperrors.CodeInvalidRequest, "localities must not be empty", nil))
		return
	}
	if h.maxBatch > 0 && len(localities) > h.maxBatch {
		h.writeError(c, apperrors.Wrap(apperrors.CodeInvalidRequest, "too many localities in one batch", nil))
		return
	}

	horizon := models.Horizon24h
	if req.Horizon != 0 {
		horizon = models.Horizon(req.Horizon)
		if !horizon.Valid() {
			h.writeError(c, apperrors.Wrap(apperrors.CodeUnsupportedHorizon, "unsupported horizon", models.ErrUnsupportedHorizon))
			return
		}
	}

	items := h.predictor.PredictBatch(c.Request.Context(), localities, horizon)
	c.JSON(http.StatusOK, batchResponse{
		Results:   items,
		Total:     len(items),
		Succeeded: predict.Succeeded(items),
	})
}

func (h *Handler) getContext(c *gin.Context) {
	lc, err := h.predictor.Context(c.Request.Context(), c.Param("locality"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	totals := make(map[string]float64, len(lc.Windows))
	for _, w := range lc.Windows {
		totals[horizonKey(w.Horizon)] = w.TotalRainfall()
	}
	c.JSON(http.StatusOK, gin.H{
		"context":           lc,
		"rainfall_totals":   totals,
		"observation_count": observationCount(lc.Windows),
	})
}

func (h *Handler) streamPredictions(c *gin.Context) {
	id, ch := h.stream.Subscribe()
	defer h.stream.Unsubscribe(id)

	h.logger.Debug("stream subscriber connected", "id", id)

	c.Stream(func(w io.Writer) bool {
		select {
		case p, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("prediction", p)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})

	h.logger.Debug("stream subscriber disconnected", "id", id)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(apperrors.Code(err))
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, predict.ToErrorResult(err))
}

func statusFor(code string) int {
	switch code {
	case apperrors.CodeUnsupportedHorizon, apperrors.CodeInvalidRequest:
		return http.StatusBadRequest
	case apperrors.CodeNoHazardData:
		return http.StatusNotFound
	case apperrors.CodeNoForecastData:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseHorizonQuery(s string) (models.Horizon, error) {
	if s == "" {
		return models.Horizon24h, nil
	}
	h, err := models.ParseHorizon(s)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeUnsupportedHorizon, "unsupported horizon", err)
	}
	return h, nil
}

func horizonKey(h models.Horizon) string {
	if h == models.Horizon48h {
		return "48h"
	}
	return "24h"
}

func observationCount(windows []models.ForecastWindow) int {
	n := 0
	for _, w := range windows {
		if len(w.Observations) > n {
			n = len(w.Observations)
		}
	}
	return n
}
