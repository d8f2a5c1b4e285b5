package regime

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"sync"
	"time"

	"TradeGate/internal/domain/models"
	domrepo "TradeGate/internal/domain/repository"
	"TradeGate/internal/services/features"
	applogger "TradeGate/pkg/logger"
)

// Config holds classifier tunables. Zero values are replaced with defaults
// by Normalize.
type Config struct {
	MinBars             int
	VolLookback         int
	TransitionFloor     float64
	RetrainIntervalDays int
	TrainWindowBars     int
	EMMaxIter           int
	EMTol               float64
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	if c.MinBars <= 0 {
		c.MinBars = 500
	}
	if c.VolLookback <= 0 {
		c.VolLookback = 20
	}
	if c.TransitionFloor <= 0 {
		c.TransitionFloor = 0.3
	}
	if c.RetrainIntervalDays <= 0 {
		c.RetrainIntervalDays = 30
	}
	if c.TrainWindowBars <= 0 {
		c.TrainWindowBars = 1008 // ~4 years of daily bars
	}
	if c.EMMaxIter <= 0 {
		c.EMMaxIter = 100
	}
	if c.EMTol <= 0 {
		c.EMTol = 1e-4
	}
}

// Model is the serialized unit persisted per symbol: the sequence model plus
// the frozen normalization moments and training metadata.
type Model struct {
	HMM       hmm
	Moments   features.Moments
	TrainedAt time.Time
}

// Encode serializes the model as an opaque gob blob.
func (m *Model) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeModel parses a blob previously produced by Encode. A corrupt blob is
// reported as models.ErrModelNotFound so callers fall back to paused rules.
func DecodeModel(blob []byte) (*Model, error) {
	var m Model
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", models.ErrModelNotFound, err)
	}
	return &m, nil
}

// Classifier serves regime states per symbol. Refit failures never replace
// the currently serving model.
type Classifier struct {
	cfg    Config
	store  domrepo.ModelStore
	logger *applogger.Logger

	mu      sync.RWMutex
	models  map[string]*Model
	current map[string]models.RegimeState
}

// NewClassifier creates a classifier backed by the given model store.
func NewClassifier(cfg Config, store domrepo.ModelStore, logger *applogger.Logger) *Classifier {
	cfg.Normalize()
	return &Classifier{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		models:  make(map[string]*Model),
		current: make(map[string]models.RegimeState),
	}
}

// Classify infers the regime for the most recent bar of the window. A
// missing model yields models.ErrModelNotFound and the paused UNKNOWN state.
func (c *Classifier) Classify(ctx context.Context, symbol string, window []models.PriceBar) (models.RegimeState, error) {
	if len(window) < c.cfg.MinBars {
		return models.UnknownRegime(symbol), fmt.Errorf("%w: %d bars, need %d", models.ErrInsufficientData, len(window), c.cfg.MinBars)
	}

	model, err := c.model(ctx, symbol)
	if err != nil {
		return models.UnknownRegime(symbol), err
	}

	mat := features.Extract(window, c.cfg.VolLookback)
	obs := make([][numFeats]float64, mat.Len())
	for i := range obs {
		obs[i] = model.Moments.Normalize(mat.Row(i))
	}

	post := model.HMM.posteriorLast(obs)
	state := c.mapState(symbol, model, post, window[len(window)-1].Timestamp)

	c.mu.Lock()
	prev, had := c.current[symbol]
	if !had || prev.Label != state.Label {
		state.EffectiveSince = window[len(window)-1].Timestamp
	} else {
		state.EffectiveSince = prev.EffectiveSince
	}
	c.current[symbol] = state
	c.mu.Unlock()
	return state, nil
}

// Current returns the last served state, or paused UNKNOWN when the symbol
// has never been classified.
func (c *Classifier) Current(symbol string) models.RegimeState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.current[symbol]; ok {
		return s
	}
	return models.UnknownRegime(symbol)
}

// ShouldRetrain reports whether the serving model for symbol is stale. A
// symbol without a model always needs training.
func (c *Classifier) ShouldRetrain(symbol string) bool {
	c.mu.RLock()
	m, ok := c.models[symbol]
	c.mu.RUnlock()
	if !ok {
		return true
	}
	age := time.Since(m.TrainedAt)
	return age >= time.Duration(c.cfg.RetrainIntervalDays)*24*time.Hour
}

// Retrain refits on the most recent TrainWindowBars bars, discarding older
// data (walk-forward). On failure the previous model keeps serving and the
// error is reported, not fatal.
func (c *Classifier) Retrain(ctx context.Context, symbol string, window []models.PriceBar) error {
	if len(window) < c.cfg.MinBars {
		return fmt.Errorf("%w: %d bars, need %d", models.ErrInsufficientData, len(window), c.cfg.MinBars)
	}
	if len(window) > c.cfg.TrainWindowBars {
		window = window[len(window)-c.cfg.TrainWindowBars:]
	}

	mat := features.Extract(window, c.cfg.VolLookback)
	moments := features.FitMoments(mat)
	obs := make([][numFeats]float64, mat.Len())
	for i := range obs {
		obs[i] = moments.Normalize(mat.Row(i))
	}

	next := &Model{Moments: moments, TrainedAt: time.Now().UTC()}
	if err := next.HMM.fit(obs, c.cfg.EMMaxIter, c.cfg.EMTol); err != nil {
		if c.logger != nil {
			c.logger.Warn("regime retrain failed, previous model stays active",
				applogger.String("symbol", symbol), applogger.Error(err))
		}
		return fmt.Errorf("retrain %s: %w", symbol, err)
	}

	blob, err := next.Encode()
	if err != nil {
		return fmt.Errorf("retrain %s: %w", symbol, err)
	}
	if err := c.store.Save(ctx, symbol, blob); err != nil {
		if c.logger != nil {
			c.logger.Warn("regime model save failed",
				applogger.String("symbol", symbol), applogger.Error(err))
		}
		return fmt.Errorf("save model %s: %w", symbol, err)
	}

	c.mu.Lock()
	c.models[symbol] = next
	c.mu.Unlock()
	if c.logger != nil {
		c.logger.Info("regime model retrained",
			applogger.String("symbol", symbol), applogger.Int("bars", len(window)))
	}
	return nil
}

// model returns the in-memory model for symbol, loading from the store on
// first use.
func (c *Classifier) model(ctx context.Context, symbol string) (*Model, error) {
	c.mu.RLock()
	m, ok := c.models[symbol]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	blob, err := c.store.Load(ctx, symbol)
	if err != nil {
		return nil, err
	}
	m, err = DecodeModel(blob)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.models[symbol] = m
	c.mu.Unlock()
	return m, nil
}

// mapState converts a posterior over latent states into a semantic regime
// using the learned state moments: highest mean volatility is HIGH_VOL; of
// the remaining two, non-negative mean return is LOW_VOL_BULLISH. State
// means live in normalized feature space, so the return sign is read after
// denormalizing through the frozen moments.
func (c *Classifier) mapState(symbol string, m *Model, post [numStates]float64, at time.Time) models.RegimeState {
	best, conf := 0, post[0]
	for s := 1; s < numStates; s++ {
		if post[s] > conf {
			best, conf = s, post[s]
		}
	}

	if math.IsNaN(conf) || conf < c.cfg.TransitionFloor {
		return models.RegimeState{
			Symbol:         symbol,
			Label:          models.RegimeTransition,
			Confidence:     conf,
			EffectiveSince: at,
			Rules:          RulesFor(models.RegimeTransition),
		}
	}

	highVol := 0
	for s := 1; s < numStates; s++ {
		if m.HMM.Mean[s][2] > m.HMM.Mean[highVol][2] {
			highVol = s
		}
	}

	rawReturn := m.Moments.Mean[0] + m.HMM.Mean[best][0]*m.Moments.Std[0]
	var label models.RegimeLabel
	switch {
	case best == highVol:
		label = models.RegimeHighVol
	case rawReturn >= 0:
		label = models.RegimeLowVolBullish
	default:
		label = models.RegimeLowVolBearish
	}

	return models.RegimeState{
		Symbol:         symbol,
		Label:          label,
		Confidence:     conf,
		EffectiveSince: at,
		Rules:          RulesFor(label),
	}
}
