package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`

	MarketData MarketDataConfig `mapstructure:"market_data"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Features   FeaturesConfig   `mapstructure:"features"`
	Model      ModelConfig      `mapstructure:"model"`
	Decision   DecisionConfig   `mapstructure:"decision"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Outcome    OutcomeConfig    `mapstructure:"outcome"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	OutcomeScan       string `mapstructure:"outcome_scan"`
	PortfolioSnapshot string `mapstructure:"portfolio_snapshot"`
	InstructionExpiry string `mapstructure:"instruction_expiry"`
}

type MarketDataConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	HistoryDays int           `mapstructure:"history_days"`
}

type StreamConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	URL              string        `mapstructure:"url"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

type FeaturesConfig struct {
	MinHistory int `mapstructure:"min_history"`
}

type ModelConfig struct {
	TrainerBaseURL     string        `mapstructure:"trainer_base_url"`
	TrainerTimeout     time.Duration `mapstructure:"trainer_timeout"`
	MinValidationScore float64       `mapstructure:"min_validation_score"`
}

type DecisionConfig struct {
	BuyThreshold      float64       `mapstructure:"buy_threshold"`
	SellThreshold     float64       `mapstructure:"sell_threshold"`
	SecondarySell     float64       `mapstructure:"secondary_sell"`
	MinBullishFlags   int           `mapstructure:"min_bullish_flags"`
	BaseAllocation    float64       `mapstructure:"base_allocation"`
	StopLossPct       float64       `mapstructure:"stop_loss_pct"`
	TakeProfitPct     float64       `mapstructure:"take_profit_pct"`
	MinTradeInterval  time.Duration `mapstructure:"min_trade_interval"`
	EquityUSD         float64       `mapstructure:"equity_usd"`
	BuyThresholdFloor float64       `mapstructure:"buy_threshold_floor"`
	BuyThresholdCap   float64       `mapstructure:"buy_threshold_cap"`
}

type ExecutionConfig struct {
	Broker       BrokerConfig  `mapstructure:"broker"`
	Agent        AgentConfig   `mapstructure:"agent"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type BrokerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKeyEnv string        `mapstructure:"api_key_env"`
	SecretEnv string        `mapstructure:"secret_env"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type AgentConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OutcomeConfig struct {
	Window         time.Duration `mapstructure:"window"`
	MinTrades      int           `mapstructure:"min_trades"`
	RetrainBelow   float64       `mapstructure:"retrain_below"`
	LoosenAbove    float64       `mapstructure:"loosen_above"`
	ThresholdStep  float64       `mapstructure:"threshold_step"`
	SnapshotOnScan bool          `mapstructure:"snapshot_on_scan"`
}

type EngineConfig struct {
	Symbols       []string      `mapstructure:"symbols"`
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	IdleInterval  time.Duration `mapstructure:"idle_interval"`
	Workers       int           `mapstructure:"workers"`
	Timezone      string        `mapstructure:"timezone"`
}

type SnapshotConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.outcome_scan", "@every 1h")
	v.SetDefault("cron.portfolio_snapshot", "0 0 * * * *")
	v.SetDefault("cron.instruction_expiry", "@every 6h")

	v.SetDefault("market_data.base_url", "http://127.0.0.1:8090")
	v.SetDefault("market_data.timeout", "15s")
	v.SetDefault("market_data.history_days", 400)

	v.SetDefault("stream.enabled", false)
	v.SetDefault("stream.url", "")
	v.SetDefault("stream.reconnect_backoff", "5s")
	v.SetDefault("stream.sweep_interval", "30s")

	v.SetDefault("features.min_history", 200)

	v.SetDefault("model.trainer_base_url", "http://127.0.0.1:8091")
	v.SetDefault("model.trainer_timeout", "120s")
	v.SetDefault("model.min_validation_score", 0.55)

	v.SetDefault("decision.buy_threshold", 0.6)
	v.SetDefault("decision.sell_threshold", 0.4)
	v.SetDefault("decision.secondary_sell", 0.45)
	v.SetDefault("decision.min_bullish_flags", 2)
	v.SetDefault("decision.base_allocation", 0.25)
	v.SetDefault("decision.stop_loss_pct", 0.05)
	v.SetDefault("decision.take_profit_pct", 0.15)
	v.SetDefault("decision.min_trade_interval", "1h")
	v.SetDefault("decision.equity_usd", 10000)
	v.SetDefault("decision.buy_threshold_floor", 0.6)
	v.SetDefault("decision.buy_threshold_cap", 0.8)

	v.SetDefault("execution.max_retries", 2)
	v.SetDefault("execution.retry_backoff", "2s")
	v.SetDefault("execution.broker.enabled", true)
	v.SetDefault("execution.broker.base_url", "https://paper-api.alpaca.markets")
	v.SetDefault("execution.broker.api_key_env", "AT_BROKER_API_KEY")
	v.SetDefault("execution.broker.secret_env", "AT_BROKER_SECRET")
	v.SetDefault("execution.broker.timeout", "10s")
	v.SetDefault("execution.agent.enabled", false)
	v.SetDefault("execution.agent.base_url", "http://127.0.0.1:8092")
	v.SetDefault("execution.agent.timeout", "30s")

	v.SetDefault("outcome.window", "168h")
	v.SetDefault("outcome.min_trades", 5)
	v.SetDefault("outcome.retrain_below", 0.6)
	v.SetDefault("outcome.loosen_above", 0.7)
	v.SetDefault("outcome.threshold_step", 0.05)
	v.SetDefault("outcome.snapshot_on_scan", true)

	v.SetDefault("engine.symbols", []string{"SPY", "QQQ", "IWM"})
	v.SetDefault("engine.cycle_interval", "5m")
	v.SetDefault("engine.idle_interval", "1h")
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.timezone", "America/New_York")

	v.SetDefault("snapshot.enabled", true)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
