package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFillsHandlerFeedsDiscipline(t *testing.T) {
	e, _, _, _ := testEngine(t)
	h := NewKafkaFillsHandler("tradegate.fills", e, nopMetrics{})
	require.Equal(t, "tradegate.fills", h.Topic())

	msg := []byte(`{"symbol":"BTCUSD","direction":"long","pnl":-75.5,"r_multiple":-1,"closed_at":1767225600000}`)
	require.NoError(t, h.Handle(context.Background(), msg))

	s := e.DisciplineState()
	require.Equal(t, 1, s.TradesToday)
	require.Equal(t, 1, s.LossesToday)
}

func TestFillsHandlerRejectsBadJSON(t *testing.T) {
	e, _, _, _ := testEngine(t)
	h := NewKafkaFillsHandler("tradegate.fills", e, nopMetrics{})
	require.Error(t, h.Handle(context.Background(), []byte("{not json")))
}

func TestBalanceHandlerDrivesAllocator(t *testing.T) {
	e, _, _, _ := testEngine(t)
	h := NewKafkaBalanceHandler("tradegate.balances", e, nopMetrics{})

	msg := []byte(`{"balance":1200,"t":1767225600}`)
	require.NoError(t, h.Handle(context.Background(), msg))

	pools := e.Pools()
	require.InDelta(t, 500.0, pools.Active, 1e-9)
	require.InDelta(t, 700.0, pools.Reserve, 1e-9)
}
