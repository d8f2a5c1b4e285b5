package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `environment: test
market_data:
  symbols: [BTCUSD, ETHUSD]
siphon:
  threshold_amount: 1000
  target_active_balance: 500
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 8080 {
		t.Fatalf("server port default = %d", c.Server.Port)
	}
	if c.Risk.MaxRiskPct != 0.02 || c.Risk.MinRiskReward != 2.0 {
		t.Fatalf("risk defaults wrong: %+v", c.Risk)
	}
	if c.Discipline.MaxDailyLosses != 3 || c.Discipline.RevengeWindow != 30*time.Minute {
		t.Fatalf("discipline defaults wrong: %+v", c.Discipline)
	}
	if c.Siphon.MinApprovalScore != 60 {
		t.Fatalf("siphon approval default = %v", c.Siphon.MinApprovalScore)
	}
	if c.Regime.TrainWindowBars != 1008 {
		t.Fatalf("regime window default = %d", c.Regime.TrainWindowBars)
	}
	if c.Kafka.OrderTopic != "tradegate.orders" || c.Kafka.FillTopic != "tradegate.fills" {
		t.Fatalf("kafka topic defaults wrong: %+v", c.Kafka)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	body := minimalYAML + `risk:
  max_risk_pct: 0.01
  min_risk_reward: 3.0
`
	c, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Risk.MaxRiskPct != 0.01 || c.Risk.MinRiskReward != 3.0 {
		t.Fatalf("overrides lost: %+v", c.Risk)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestValidateRejectsBadGovernance(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			"no symbols",
			"environment: test\n",
			"symbols",
		},
		{
			"risk reward below one",
			minimalYAML + "risk:\n  min_risk_reward: 0.5\n",
			"min_risk_reward",
		},
		{
			"max risk pct out of range",
			minimalYAML + "risk:\n  max_risk_pct: 1.5\n",
			"max_risk_pct",
		},
		{
			"min risk above max",
			minimalYAML + "risk:\n  min_risk_pct: 0.05\n",
			"min_risk_pct",
		},
		{
			"reject below modify",
			minimalYAML + "risk:\n  reject_threshold: 4\n  modify_threshold: 5\n",
			"reject_threshold",
		},
		{
			"approval score out of range",
			"environment: test\nmarket_data:\n  symbols: [BTCUSD]\nsiphon:\n  threshold_amount: 1000\n  target_active_balance: 500\n  min_approval_score: 150\n",
			"min_approval_score",
		},
		{
			"target above threshold",
			"environment: test\nmarket_data:\n  symbols: [BTCUSD]\nsiphon:\n  threshold_amount: 1000\n  target_active_balance: 1500\n",
			"target_active_balance",
		},
		{
			"transition floor out of range",
			minimalYAML + "regime:\n  transition_confidence_floor: 1.5\n",
			"transition_confidence_floor",
		},
		{
			"min bars below lookback",
			minimalYAML + "regime:\n  min_bars: 10\n  vol_lookback: 20\n",
			"min_bars",
		},
	}

	for _, tc := range cases {
		_, err := Load(writeConfig(t, tc.body))
		if err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err = %v, want mention of %s", tc.name, err, tc.want)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "SOLUSD,ADAUSD")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SERVER_PORT", "9090")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.MarketData.Symbols) != 2 || c.MarketData.Symbols[0] != "SOLUSD" {
		t.Fatalf("symbols override lost: %v", c.MarketData.Symbols)
	}
	if len(c.Kafka.Brokers) != 2 {
		t.Fatalf("brokers override lost: %v", c.Kafka.Brokers)
	}
	if c.Redis.Addr != "redis:6379" {
		t.Fatalf("redis override lost: %v", c.Redis.Addr)
	}
	if c.Server.Port != 9090 {
		t.Fatalf("port override lost: %d", c.Server.Port)
	}

	t.Setenv("SERVER_PORT", "nonsense")
	c, err = LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 8080 {
		t.Fatalf("bad port should fall back to default, got %d", c.Server.Port)
	}
}
