package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"oneof=development staging production"`
	Log         LogConfig        `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Engine      EngineConfig     `yaml:"engine"`
	Risk        RiskConfig       `yaml:"risk"`
	Strategy    StrategyConfig   `yaml:"strategy"`
	Exit        ExitConfig       `yaml:"exit"`
	Alpaca      AlpacaConfig     `yaml:"alpaca"`
	Analytics   AnalyticsConfig  `yaml:"analytics"`
	Finnhub     FinnhubConfig    `yaml:"finnhub"`
	Redis       RedisConfig      `yaml:"redis"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	Output string `yaml:"output" default:"stdout"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// EngineConfig drives the decision loop and execution adapter.
type EngineConfig struct {
	Universe        []string      `yaml:"universe" validate:"min=1,dive,required"`
	CycleInterval   time.Duration `yaml:"cycle_interval" default:"60s"`
	SymbolDelay     time.Duration `yaml:"symbol_delay" default:"250ms"`
	DryRun          bool          `yaml:"dry_run"`
	PendingTTL      time.Duration `yaml:"pending_ttl" default:"1h"`
	HaltCooldown    time.Duration `yaml:"halt_cooldown" default:"300s"`
	SlippageWarnPct float64       `yaml:"slippage_warn_pct" default:"0.005" validate:"gte=0"`
	TimeInForce     string        `yaml:"time_in_force" default:"day" validate:"oneof=day gtc"`
}

// RiskConfig is the risk surface. A zero max_daily_loss_pct disables the
// breaker and a zero max_position_pct disables the equity cap.
type RiskConfig struct {
	MaxDailyLossPct       float64 `yaml:"max_daily_loss_pct" default:"0.03" validate:"gte=0,lt=1"`
	MaxPositionPct        float64 `yaml:"max_position_pct" default:"0.10" validate:"gte=0,lte=1"`
	MaxRiskPct            float64 `yaml:"max_risk_pct" default:"0.01" validate:"gt=0,lt=1"`
	CrashMaxRiskScale     float64 `yaml:"crash_max_risk_scale" default:"0.5" validate:"gt=0,lte=1"`
	DailyBudget           float64 `yaml:"daily_budget" default:"10000" validate:"gte=0"`
	MaxPositions          int     `yaml:"max_positions" default:"5" validate:"gte=1"`
	CrashMaxPositions     int     `yaml:"crash_max_positions" default:"3" validate:"gte=1"`
	StopLossPct           float64 `yaml:"stop_loss_pct" default:"0.006" validate:"gt=0,lt=1"`
	TakeProfitPct         float64 `yaml:"take_profit_pct" default:"0.018" validate:"gt=0,lt=1"`
	CrashStopLossPct      float64 `yaml:"crash_stop_loss_pct" default:"0.005" validate:"gt=0,lt=1"`
	CrashTakeProfitPct    float64 `yaml:"crash_take_profit_pct" default:"0.015" validate:"gt=0,lt=1"`
	DefaultMaxHoldMinutes int     `yaml:"default_max_hold_minutes" default:"90" validate:"gte=0"`
	CrashMaxHoldMinutes   int     `yaml:"crash_max_hold_minutes" default:"60" validate:"gte=0"`
}

type StrategyConfig struct {
	TrendThreshold        float64 `yaml:"trend_threshold" default:"0.60" validate:"gt=0,lt=1"`
	ReversalThreshold     float64 `yaml:"reversal_threshold" default:"0.55" validate:"gt=0,lt=1"`
	RegimeGateMinScore    float64 `yaml:"regime_gate_min_score" default:"-0.2" validate:"gte=-1,lte=1"`
	ATRMultiplier         float64 `yaml:"atr_multiplier" default:"2.5" validate:"gt=0"`
	ProbeSymbol           string  `yaml:"probe_symbol" default:"SPY" validate:"required"`
	RegimeSymbol          string  `yaml:"regime_symbol" default:"SPY"`
	MomentumTopK          int     `yaml:"momentum_top_k" default:"10" validate:"gte=1"`
	SwingMaxSignals       int     `yaml:"swing_max_signals" default:"5" validate:"gte=1"`
	CrashMaxSignals       int     `yaml:"crash_max_signals" default:"3" validate:"gte=1"`
	IntradayWindowMinutes int     `yaml:"intraday_window_minutes" default:"60" validate:"gte=30"`
	DailyLookback         int     `yaml:"daily_lookback" default:"60" validate:"gte=35"`
}

type ExitConfig struct {
	TrailMinPct           float64       `yaml:"trail_min_pct" default:"0.004" validate:"gt=0,lt=1"`
	TrailMaxPct           float64       `yaml:"trail_max_pct" default:"0.025" validate:"gtefield=TrailMinPct,lt=1"`
	CrashTrailMinPct      float64       `yaml:"crash_trail_min_pct" default:"0.003" validate:"gt=0,lt=1"`
	CrashTrailMaxPct      float64       `yaml:"crash_trail_max_pct" default:"0.015" validate:"gtefield=CrashTrailMinPct,lt=1"`
	FailureWindow         time.Duration `yaml:"failure_window" default:"600s"`
	FailureThreshold      int           `yaml:"failure_threshold" default:"2" validate:"gte=1"`
	IntradayWindowMinutes int           `yaml:"intraday_window_minutes" default:"120" validate:"gte=30"`
}

type AlpacaConfig struct {
	TradingURL    string        `yaml:"trading_url" default:"https://paper-api.alpaca.markets" validate:"url"`
	DataURL       string        `yaml:"data_url" default:"https://data.alpaca.markets" validate:"url"`
	KeyID         string        `yaml:"key_id"`
	SecretKey     string        `yaml:"secret_key"`
	Feed          string        `yaml:"feed" default:"iex" validate:"oneof=iex sip"`
	Timeout       time.Duration `yaml:"timeout" default:"10s"`
	RatePerMinute int           `yaml:"rate_per_minute" default:"180" validate:"gte=1"`
	Cooldown      time.Duration `yaml:"cooldown" default:"30s"`
	MaxStaleness  time.Duration `yaml:"max_staleness" default:"15m"`
	CacheTTL      time.Duration `yaml:"cache_ttl" default:"30s"`
	DailyCacheTTL time.Duration `yaml:"daily_cache_ttl" default:"10m"`
}

type AnalyticsConfig struct {
	ServiceURL   string        `yaml:"service_url" validate:"omitempty,url"`
	Timeout      time.Duration `yaml:"timeout" default:"5s"`
	Retries      int           `yaml:"retries" default:"2" validate:"gte=0"`
	SentimentTTL time.Duration `yaml:"sentiment_ttl" default:"15m"`
}

type FinnhubConfig struct {
	Enabled        bool          `yaml:"enabled"`
	APIKey         string        `yaml:"api_key" validate:"required_if=Enabled true"`
	WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	MaxQuoteAge    time.Duration `yaml:"max_quote_age" default:"30s"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"microtrader"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers" validate:"required_if=Enabled true"`
	TradeTopic  string   `yaml:"trade_topic" default:"microtrader.trade-events"`
	LogTopic    string   `yaml:"log_topic" default:"microtrader.logs"`
	Compression string   `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd"`
	Producer    struct {
		RequiredAcks int           `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"200ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID         string        `yaml:"group_id" default:"microtrader-archiver"`
		AutoOffsetReset string        `yaml:"auto_offset_reset" default:"earliest" validate:"oneof=earliest latest"`
		Workers         int           `yaml:"workers" default:"2" validate:"gte=1"`
		BufferSize      int           `yaml:"buffer_size" default:"64"`
		RetryMax        int           `yaml:"retry_max" default:"3"`
		BackoffMin      time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax      time.Duration `yaml:"backoff_max" default:"2s"`
		MinBytes        int           `yaml:"min_bytes" default:"1"`
		MaxBytes        int           `yaml:"max_bytes" default:"10485760"`
		DLQTopic        string        `yaml:"dlq_topic"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"microtrader"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

var validate = validator.New()

// Load reads a YAML configuration file. Defaults are applied before parsing
// so explicit zeros in the file are kept.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML document.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.normalize()
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
	c.applyEnv(os.Getenv)
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ALPACA_API_KEY_ID"); v != "" {
		c.Alpaca.KeyID = v
	}
	if v := getenv("ALPACA_API_SECRET_KEY"); v != "" {
		c.Alpaca.SecretKey = v
	}
	if v := getenv("ALPACA_BASE_URL"); v != "" {
		c.Alpaca.TradingURL = v
	}
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := getenv("UNIVERSE"); v != "" {
		c.Engine.Universe = splitList(v)
	}
	if v := getenv("DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Engine.DryRun = b
		}
	}
	if v := getenv("ANALYTICS_URL"); v != "" {
		c.Analytics.ServiceURL = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
}

func (c *Config) normalize() {
	for i, s := range c.Engine.Universe {
		c.Engine.Universe[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	c.Strategy.ProbeSymbol = strings.ToUpper(strings.TrimSpace(c.Strategy.ProbeSymbol))
	c.Strategy.RegimeSymbol = strings.ToUpper(strings.TrimSpace(c.Strategy.RegimeSymbol))
}

// Validate checks struct tags.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
