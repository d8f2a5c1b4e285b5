package api

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"TradeGate/internal/domain/models"
	icache "TradeGate/internal/service/cache"
	"TradeGate/internal/service/metrics"
	"TradeGate/internal/service/ratelimit"
	"TradeGate/internal/usecase"
	xhttp "TradeGate/pkg/http"
	xlogger "TradeGate/pkg/logger"
)

// snapshotTTL keeps dashboard polling off the ledger.
const snapshotTTL = 5 * time.Second

// GateEchoHandler exposes the gate over HTTP: trade validation, emotion
// check-ins, and the read-only snapshots the dashboard polls.
type GateEchoHandler struct {
	logger *xlogger.Logger
	engine *usecase.Engine
	cache  icache.BytesCache
	rl     *ratelimit.Limiter
}

func NewGateEchoHandler(logger *xlogger.Logger, engine *usecase.Engine) *GateEchoHandler {
	metrics.Register()
	return &GateEchoHandler{logger: logger, engine: engine, rl: ratelimit.New()}
}

// SetCache injects a snapshot cache.
func (h *GateEchoHandler) SetCache(c icache.BytesCache) { h.cache = c }

func (h *GateEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/validate", h.Validate)
	g.POST("/emotion", h.Emotion)
	g.GET("/regime", h.Regime)
	g.GET("/discipline", h.Discipline)
	g.GET("/pools", h.Pools)
	g.GET("/validations", h.Validations)
	g.GET("/siphons", h.Siphons)
}

func (h *GateEchoHandler) Validate(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("validate").Observe(time.Since(start).Seconds()) }()

	req := &models.ValidateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	proposal := &models.TradeProposal{
		Symbol:           req.Symbol,
		Direction:        models.Direction(req.Direction),
		EntryPrice:       req.EntryPrice,
		StopLoss:         req.StopLoss,
		TakeProfit:       req.TakeProfit,
		RequestedSize:    req.RequestedSize,
		ConfidenceHint:   req.ConfidenceHint,
		HigherTFTrend:    models.Direction(req.HigherTFTrend),
		ConfirmingSignal: req.ConfirmingSignal,
		ProposedAt:       time.Now().UTC(),
	}

	res, err := h.engine.ValidateProposal(c.Request().Context(), proposal)
	if err != nil {
		if errors.Is(err, models.ErrMalformedProposal) {
			return xhttp.BadRequestResponse(c, err.Error())
		}
		metrics.APIErrors.WithLabelValues("validate").Inc()
		h.logger.Error("validate usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *GateEchoHandler) Emotion(c echo.Context) error {
	req := &models.EmotionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	verdict, err := h.engine.LogEmotion(c.Request().Context(), req.Emotion, req.Intensity, req.Notes)
	if err != nil {
		metrics.APIErrors.WithLabelValues("emotion").Inc()
		h.logger.Error("emotion usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, verdict)
}

func (h *GateEchoHandler) Regime(c echo.Context) error {
	req := &models.RegimeSnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, h.engine.RegimeState(req.Symbol))
}

func (h *GateEchoHandler) Discipline(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.DisciplineState())
}

func (h *GateEchoHandler) Pools(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Pools())
}

func (h *GateEchoHandler) Validations(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("validations").Observe(time.Since(start).Seconds()) }()

	req := &models.ValidationsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":validations", 5, 2) {
		return echo.NewHTTPError(429, "rate limited")
	}

	cacheKey := "validations:" + req.Symbol
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(cacheKey); err == nil && ok {
			var cached []models.ValidationResult
			if err := json.Unmarshal(b, &cached); err == nil && len(cached) >= req.N {
				return xhttp.SuccessResponse(c, cached[:req.N])
			}
		}
	}

	res, err := h.engine.RecentValidations(c.Request().Context(), req.Symbol, req.N)
	if err != nil {
		metrics.APIErrors.WithLabelValues("validations").Inc()
		h.logger.Error("validations usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if h.cache != nil {
		if b, err := json.Marshal(res); err == nil {
			_ = h.cache.SetBytes(cacheKey, b, snapshotTTL)
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *GateEchoHandler) Siphons(c echo.Context) error {
	req := &models.SiphonHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	events := h.engine.SiphonHistory()
	if since, ok := xhttp.ParseTime(req.Since); ok {
		filtered := events[:0:0]
		for _, ev := range events {
			if ev.ProposedAt.After(since) {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	if req.N > 0 && len(events) > req.N {
		events = events[len(events)-req.N:]
	}
	return xhttp.SuccessResponse(c, events)
}
