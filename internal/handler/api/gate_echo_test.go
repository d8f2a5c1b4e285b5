package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"TradeGate/internal/domain/models"
	"TradeGate/internal/repository"
	icache "TradeGate/internal/service/cache"
	"TradeGate/internal/usecase"
	xlogger "TradeGate/pkg/logger"
)

type stubRegimeSvc struct{ states map[string]models.RegimeState }

func (s *stubRegimeSvc) Classify(_ context.Context, symbol string, _ []models.PriceBar) (models.RegimeState, error) {
	return s.states[symbol], nil
}
func (s *stubRegimeSvc) Current(symbol string) models.RegimeState        { return s.states[symbol] }
func (s *stubRegimeSvc) ShouldRetrain(string) bool                       { return false }
func (s *stubRegimeSvc) Retrain(context.Context, string, []models.PriceBar) error { return nil }

type nopPublisher struct{}

func (nopPublisher) PublishOrder(context.Context, *models.TradeProposal, *models.ValidationResult) error {
	return nil
}
func (nopPublisher) PublishTransfer(context.Context, *models.TransferInstruction) error { return nil }
func (nopPublisher) Close() error                                                       { return nil }

type nopMetricsSink struct{}

func (nopMetricsSink) RecordDecision(string, models.Decision)           {}
func (nopMetricsSink) RecordRegime(string, models.RegimeLabel, float64) {}
func (nopMetricsSink) RecordPools(float64, float64)                     {}
func (nopMetricsSink) RecordSiphon(models.SiphonStatus, float64)        {}
func (nopMetricsSink) RecordLockout(string)                             {}
func (nopMetricsSink) RecordError(string)                               {}
func (nopMetricsSink) RecordLatency(string, float64)                    {}

type stubOracle struct{}

func (stubOracle) ScoreTransfer(context.Context, float64) (float64, error) { return 80, nil }

func testServer(t *testing.T) (*echo.Echo, *usecase.Engine) {
	t.Helper()

	log, err := xlogger.New(&xlogger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	ledger := repository.NewMemoryLedger()
	m := nopMetricsSink{}
	pub := nopPublisher{}

	validator := usecase.NewTradeValidator(usecase.ValidatorConfig{
		MinRiskPct:      0.005,
		MaxRiskPct:      0.02,
		MinRiskReward:   2.0,
		RejectThreshold: 7.0,
		ModifyThreshold: 5.0,
		ConfidenceFloor: 0.3,
		MinConfluence:   2,
		HistoryLookback: 20,
		AdvisoryTimeout: time.Second,
	}, ledger, nil, m, log)
	discipline := usecase.NewDisciplineTracker(usecase.DisciplineConfig{
		MaxStrikes:     3,
		MaxDailyTrades: 10,
		RevengeWindow:  30 * time.Minute,
	}, ledger, m, log)
	allocator := usecase.NewCapitalAllocator(usecase.SiphonConfig{
		ThresholdAmount:     1000,
		TargetActiveBalance: 500,
		MinApprovalScore:    60,
		OracleTimeout:       time.Second,
	}, 500, stubOracle{}, ledger, pub, m, log)

	engine := usecase.NewEngine(usecase.EngineParams{
		Classifier: &stubRegimeSvc{states: map[string]models.RegimeState{
			"BTCUSD": {
				Symbol:     "BTCUSD",
				Label:      models.RegimeLowVolBullish,
				Confidence: 0.9,
				Rules:      models.TradingRules{AllowLong: true, PositionMultiplier: 1.0},
			},
		}},
		Validator:  validator,
		Discipline: discipline,
		Allocator:  allocator,
		Bars:       repository.NewMemoryBarStore(64),
		Ledger:     ledger,
		Publisher:  pub,
		Metrics:    m,
		Logger:     log,
		WindowSize: 32,
	})
	t.Cleanup(func() { engine.Close() })

	h := NewGateEchoHandler(log, engine)
	h.SetCache(icache.NewTTLCache())

	e := echo.New()
	h.RegisterRoutes(e)
	return e, engine
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type apiEnvelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestValidateEndpointApproves(t *testing.T) {
	e, _ := testServer(t)

	rec := doJSON(e, http.MethodPost, "/api/validate", `{
		"symbol": "BTCUSD",
		"direction": "long",
		"entry_price": 100,
		"stop_loss": 98,
		"take_profit": 106,
		"requested_size": 0.01,
		"higher_tf_trend": "long",
		"confirming_signals": ["ema_cross", "volume_spike"]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)

	var res models.ValidationResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Equal(t, models.DecisionApprove, res.Decision)
	require.Equal(t, "BTCUSD", res.Symbol)
	require.Greater(t, res.Confidence, 0.3)
}

func TestValidateEndpointRejectsBadPayload(t *testing.T) {
	e, _ := testServer(t)

	rec := doJSON(e, http.MethodPost, "/api/validate", `{
		"symbol": "BTCUSD",
		"direction": "sideways",
		"entry_price": 100,
		"stop_loss": 98,
		"requested_size": 0.01
	}`)

	env := decodeEnvelope(t, rec)
	require.Equal(t, http.StatusBadRequest, env.Status)
}

func TestEmotionEndpoint(t *testing.T) {
	e, engine := testServer(t)

	rec := doJSON(e, http.MethodPost, "/api/emotion", `{"emotion": "calm", "notes": "pre session"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)

	var verdict models.EmotionVerdict
	require.NoError(t, json.Unmarshal(env.Data, &verdict))
	require.True(t, verdict.ShouldTrade)
	require.Len(t, engine.DisciplineState().EmotionLog, 1)
}

func TestRegimeEndpoint(t *testing.T) {
	e, _ := testServer(t)

	rec := doJSON(e, http.MethodGet, "/api/regime?symbol=BTCUSD", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "private, max-age=5", rec.Header().Get(echo.HeaderCacheControl))

	env := decodeEnvelope(t, rec)
	var state models.RegimeState
	require.NoError(t, json.Unmarshal(env.Data, &state))
	require.Equal(t, models.RegimeLowVolBullish, state.Label)

	env = decodeEnvelope(t, doJSON(e, http.MethodGet, "/api/regime", ""))
	require.Equal(t, http.StatusBadRequest, env.Status)
}

func TestPoolsEndpoint(t *testing.T) {
	e, _ := testServer(t)

	env := decodeEnvelope(t, doJSON(e, http.MethodGet, "/api/pools", ""))
	require.Equal(t, http.StatusOK, env.Status)

	var pools models.CapitalPools
	require.NoError(t, json.Unmarshal(env.Data, &pools))
	require.Equal(t, 500.0, pools.Active)
	require.Equal(t, 0.0, pools.Reserve)
}

func TestValidationsEndpointRateLimited(t *testing.T) {
	e, _ := testServer(t)

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = doJSON(e, http.MethodGet, "/api/validations?symbol=BTCUSD&n=5", "")
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
}

func TestSiphonsEndpointEmpty(t *testing.T) {
	e, _ := testServer(t)

	rec := doJSON(e, http.MethodGet, "/api/siphons", "")
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)

	var events []models.SiphonEvent
	if len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, &events))
	}
	require.Empty(t, events)
}
