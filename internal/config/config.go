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

	Council    CouncilConfig    `mapstructure:"council"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Projector  ProjectorConfig  `mapstructure:"projector"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Learner    LearnerConfig    `mapstructure:"learner"`
	Audit      AuditConfig      `mapstructure:"audit"`
	TruthFeed  TruthFeedConfig  `mapstructure:"truth_feed"`
}

type AppConfig struct {
	Env    string `mapstructure:"env"`
	Season string `mapstructure:"season"`
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
	Enabled      bool   `mapstructure:"enabled"`
	Consensus    string `mapstructure:"consensus"`
	GradeRetry   string `mapstructure:"grade_retry"`
	PendingSweep string `mapstructure:"pending_sweep"`
}

// CouncilConfig carries the selector's tunables. The composite-score weights
// and eligibility thresholds are deliberately config, not constants: the
// source material leaves them open and they are meant to be tuned empirically.
type CouncilConfig struct {
	Seats          int           `mapstructure:"seats"`
	MinSamples     int           `mapstructure:"min_samples"`
	TrailingWindow time.Duration `mapstructure:"trailing_window"`

	WeightROI       float64 `mapstructure:"weight_roi"`
	WeightAccuracy  float64 `mapstructure:"weight_accuracy"`
	WeightCalib     float64 `mapstructure:"weight_calibration"`
	WeightBankroll  float64 `mapstructure:"weight_bankroll"`
	WeightStake     float64 `mapstructure:"weight_stake"`
	WeightDiversity float64 `mapstructure:"weight_diversity"`
	ResidualDepth   int     `mapstructure:"residual_depth"`
}

type AggregatorConfig struct {
	// ConfidenceClamp bounds confidences away from 0 and 1 before the
	// logit transform.
	ConfidenceClamp float64 `mapstructure:"confidence_clamp"`
	DefaultSigma    float64 `mapstructure:"default_sigma"`
}

type ProjectorConfig struct {
	Tolerance      float64 `mapstructure:"tolerance"`
	SignPenalty    float64 `mapstructure:"sign_penalty"`
	MaxRelaxations int     `mapstructure:"max_relaxations"`
}

type SettlementConfig struct {
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	PendingPushAfter time.Duration `mapstructure:"pending_push_after"`
	StartingBankroll float64       `mapstructure:"starting_bankroll"`
}

type LearnerConfig struct {
	Eta    float64 `mapstructure:"eta"`
	BetaLR float64 `mapstructure:"beta_lr"`
}

type AuditConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	QueueSize  int           `mapstructure:"queue_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
}

type TruthFeedConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	URL              string        `mapstructure:"url"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("app.season", "2026")
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
	v.SetDefault("cron.consensus", "@every 1m")
	v.SetDefault("cron.grade_retry", "@every 2m")
	v.SetDefault("cron.pending_sweep", "@every 1h")

	v.SetDefault("council.seats", 5)
	v.SetDefault("council.min_samples", 10)
	v.SetDefault("council.trailing_window", "720h")
	v.SetDefault("council.weight_roi", 0.25)
	v.SetDefault("council.weight_accuracy", 0.25)
	v.SetDefault("council.weight_calibration", 0.15)
	v.SetDefault("council.weight_bankroll", 0.15)
	v.SetDefault("council.weight_stake", 0.10)
	v.SetDefault("council.weight_diversity", 0.10)
	v.SetDefault("council.residual_depth", 40)

	v.SetDefault("aggregator.confidence_clamp", 0.01)
	v.SetDefault("aggregator.default_sigma", 10.0)

	v.SetDefault("projector.tolerance", 1e-6)
	v.SetDefault("projector.sign_penalty", 25.0)
	v.SetDefault("projector.max_relaxations", 0) // 0 = up to the full constraint count

	v.SetDefault("settlement.max_retries", 5)
	v.SetDefault("settlement.retry_backoff", "200ms")
	v.SetDefault("settlement.pending_push_after", "336h")
	v.SetDefault("settlement.starting_bankroll", 1000)

	v.SetDefault("learner.eta", 0.10)
	v.SetDefault("learner.beta_lr", 0.30)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.timeout", "5s")
	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.max_retries", 3)
	v.SetDefault("audit.backoff", "500ms")

	v.SetDefault("truth_feed.enabled", false)
	v.SetDefault("truth_feed.reconnect_backoff", "5s")

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
