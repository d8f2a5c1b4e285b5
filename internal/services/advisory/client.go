package advisory

import (
	"context"
	"fmt"
	"time"

	"TradeGate/internal/domain/models"
	domsvc "TradeGate/internal/domain/service"
	"TradeGate/internal/service/ratelimit"
	xhttp "TradeGate/pkg/http"
)

// HTTPScorer calls an external critique service and maps its verdict onto
// the 0-10 scale the validator folds into the technical dimension. The call
// is advisory only: the caller bounds it with a timeout and treats any
// failure as the neutral score.
type HTTPScorer struct {
	baseURL string
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	// token bucket parameters for outbound calls
	rateCap    float64
	ratePerSec float64
}

var _ domsvc.AdvisoryScorer = (*HTTPScorer)(nil)

// NewHTTPScorer builds an advisory client. rateCap/ratePerSec bound outbound
// calls; a throttled call returns an error rather than queuing.
func NewHTTPScorer(baseURL string, timeout time.Duration, rateCap, ratePerSec float64) *HTTPScorer {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPScorer{
		baseURL:    baseURL,
		client:     xhttp.NewClient(xhttp.WithTimeout(timeout)),
		limiter:    ratelimit.New(),
		rateCap:    rateCap,
		ratePerSec: ratePerSec,
	}
}

type critiqueReq struct {
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Size       float64 `json:"size"`
}

type critiqueResp struct {
	Score      float64 `json:"score"` // 0-10, 0 agrees with the trade
	Confidence float64 `json:"confidence"`
}

// Score posts the proposal for critique.
func (s *HTTPScorer) Score(ctx context.Context, p *models.TradeProposal) (float64, error) {
	if s.baseURL == "" {
		return 0, fmt.Errorf("advisory client not configured")
	}
	if s.rateCap > 0 && !s.limiter.Allow("advisory", s.rateCap, s.ratePerSec) {
		return 0, fmt.Errorf("advisory rate limited")
	}

	var cr critiqueResp
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    s.baseURL + "/critique",
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: critiqueReq{
			Symbol:     p.Symbol,
			Direction:  string(p.Direction),
			EntryPrice: p.EntryPrice,
			StopLoss:   p.StopLoss,
			TakeProfit: p.TakeProfit,
			Size:       p.RequestedSize,
		},
	}, &cr)
	if err != nil {
		return 0, fmt.Errorf("post critique: %w", err)
	}
	if cr.Score < 0 || cr.Score > 10 {
		return 0, fmt.Errorf("critique score out of range: %.2f", cr.Score)
	}
	return cr.Score, nil
}
