package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"TradeGate/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Risk struct {
		MaxRiskPct      float64 `yaml:"max_risk_pct" default:"0.02"`
		MinRiskPct      float64 `yaml:"min_risk_pct" default:"0.005"`
		MinRiskReward   float64 `yaml:"min_risk_reward" default:"2.0"`
		RejectThreshold float64 `yaml:"reject_threshold" default:"7.0"`
		ModifyThreshold float64 `yaml:"modify_threshold" default:"5.0"`
		ConfidenceFloor float64 `yaml:"confidence_floor" default:"0.3"`
		MinConfluence   int     `yaml:"min_confluence" default:"2"`
		HistoryLookback int     `yaml:"history_lookback" default:"20"`
	} `yaml:"risk"`
	Discipline struct {
		MaxDailyLosses int           `yaml:"max_daily_losses" default:"3"`
		MaxDailyTrades int           `yaml:"max_daily_trades" default:"10"`
		DailyLossLimit float64       `yaml:"daily_loss_limit"`
		RevengeWindow  time.Duration `yaml:"revenge_window" default:"30m"`
	} `yaml:"discipline"`
	Siphon struct {
		ThresholdAmount     float64       `yaml:"threshold_amount"`
		TargetActiveBalance float64       `yaml:"target_active_balance"`
		MinApprovalScore    float64       `yaml:"min_approval_score" default:"60"`
		InitialActive       float64       `yaml:"initial_active"`
		OracleTimeout       time.Duration `yaml:"oracle_timeout" default:"5s"`
	} `yaml:"siphon"`
	Regime struct {
		MinBars             int     `yaml:"min_bars" default:"500"`
		VolLookback         int     `yaml:"vol_lookback" default:"20"`
		TransitionFloor     float64 `yaml:"transition_confidence_floor" default:"0.3"`
		RetrainIntervalDays int     `yaml:"retrain_interval_days" default:"30"`
		TrainWindowBars     int     `yaml:"train_window_bars" default:"1008"`
	} `yaml:"regime"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		OrderTopic    string   `yaml:"order_topic" default:"tradegate.orders"`
		TransferTopic string   `yaml:"transfer_topic" default:"tradegate.transfers"`
		FillTopic     string   `yaml:"fill_topic" default:"tradegate.fills"`
		BalanceTopic  string   `yaml:"balance_topic" default:"tradegate.balances"`
		LogTopic      string   `yaml:"log_topic" default:"tradegate.logs"`
		RequiredAcks  int      `yaml:"required_acks" default:"1"`
		Compression   string   `yaml:"compression" default:"snappy"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"tradegate"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"tradegate"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	MarketData struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Symbols        []string      `yaml:"symbols"`
		Timeframe      string        `yaml:"timeframe" default:"1h"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"market_data"`
	Advisory struct {
		URL        string        `yaml:"url"`
		Timeout    time.Duration `yaml:"timeout" default:"2s"`
		RateCap    float64       `yaml:"rate_cap" default:"5"`
		RatePerSec float64       `yaml:"rate_per_sec" default:"1"`
	} `yaml:"advisory"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("MARKET_DATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.MarketData.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}

	return c, nil
}

// Validate checks the configuration. Out-of-range governance values fail
// startup instead of degrading silently.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.MarketData.Symbols) == 0 {
		return fmt.Errorf("market_data.symbols cannot be empty")
	}
	if c.Risk.MinRiskReward < 1.0 {
		return fmt.Errorf("risk.min_risk_reward must be >= 1.0, got %.2f", c.Risk.MinRiskReward)
	}
	if c.Risk.MaxRiskPct <= 0 || c.Risk.MaxRiskPct > 1 {
		return fmt.Errorf("risk.max_risk_pct must be in (0, 1], got %.4f", c.Risk.MaxRiskPct)
	}
	if c.Risk.MinRiskPct < 0 || c.Risk.MinRiskPct > c.Risk.MaxRiskPct {
		return fmt.Errorf("risk.min_risk_pct must be in [0, max_risk_pct], got %.4f", c.Risk.MinRiskPct)
	}
	if c.Risk.RejectThreshold <= c.Risk.ModifyThreshold {
		return fmt.Errorf("risk.reject_threshold must exceed modify_threshold")
	}
	if c.Discipline.MaxDailyLosses <= 0 {
		return fmt.Errorf("discipline.max_daily_losses must be positive")
	}
	if c.Discipline.MaxDailyTrades <= 0 {
		return fmt.Errorf("discipline.max_daily_trades must be positive")
	}
	if c.Siphon.MinApprovalScore < 0 || c.Siphon.MinApprovalScore > 100 {
		return fmt.Errorf("siphon.min_approval_score must be in [0, 100], got %.0f", c.Siphon.MinApprovalScore)
	}
	if c.Siphon.ThresholdAmount > 0 && c.Siphon.TargetActiveBalance >= c.Siphon.ThresholdAmount {
		return fmt.Errorf("siphon.target_active_balance must be below threshold_amount")
	}
	if c.Regime.TransitionFloor < 0 || c.Regime.TransitionFloor > 1 {
		return fmt.Errorf("regime.transition_confidence_floor must be in [0, 1]")
	}
	if c.Regime.MinBars <= c.Regime.VolLookback {
		return fmt.Errorf("regime.min_bars must exceed vol_lookback")
	}
	return nil
}
