package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Tier determines which infrastructure backends are used
	Tier Deployment `mapstructure:"tier"`

	// Engine holds every scoring constant; nothing in the engine
	// hard-codes a threshold that is not read from here.
	Engine EngineConfig `mapstructure:"engine"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"event_bus"`
	Worker     WorkerConfig     `mapstructure:"worker"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// EngineConfig groups the rule, scoring and batch settings.
type EngineConfig struct {
	Rules    RulesConfig    `mapstructure:"rules"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Advisory AdvisoryConfig `mapstructure:"advisory"`
}

// RulesConfig parameterizes the built-in rule catalog.
type RulesConfig struct {
	LargeAmountThreshold float64 `mapstructure:"large_amount_threshold"`
	LargeAmountStep      float64 `mapstructure:"large_amount_step"`
	LargeAmountMaxWeight int     `mapstructure:"large_amount_max_weight"`
	CriticalAmount       float64 `mapstructure:"critical_amount"`

	StructuringFloor  float64 `mapstructure:"structuring_floor"`
	StructuringWeight int     `mapstructure:"structuring_weight"`

	RoundAmountWeight int `mapstructure:"round_amount_weight"`

	HighRiskCountries   []string `mapstructure:"high_risk_countries"`
	HighRiskWeight      int      `mapstructure:"high_risk_weight"`
	CashTypes           []string `mapstructure:"cash_types"`
	CashWeight          int      `mapstructure:"cash_weight"`
	SanctionsRoster     []string `mapstructure:"sanctions_roster"`
	SanctionsKeywords   []string `mapstructure:"sanctions_keywords"`
	SanctionsSimilarity float64  `mapstructure:"sanctions_similarity"`
	SanctionsWeight     int      `mapstructure:"sanctions_weight"`

	// Profile ceilings are the largest single transaction considered
	// ordinary per income bracket; IncomeVeryHigh has none. Parties with a
	// LowIncomeOccupations entry and no bracket use the low ceiling.
	ProfileLowCeiling     float64  `mapstructure:"profile_low_ceiling"`
	ProfileMediumCeiling  float64  `mapstructure:"profile_medium_ceiling"`
	ProfileHighCeiling    float64  `mapstructure:"profile_high_ceiling"`
	LowIncomeOccupations  []string `mapstructure:"low_income_occupations"`
	ProfileModerateRatio  float64  `mapstructure:"profile_moderate_ratio"`
	ProfileSevereRatio    float64  `mapstructure:"profile_severe_ratio"`
	ProfileModerateWeight int      `mapstructure:"profile_moderate_weight"`
	ProfileSevereWeight   int      `mapstructure:"profile_severe_weight"`

	VelocityWindow     time.Duration `mapstructure:"velocity_window"`
	VelocityThreshold  int           `mapstructure:"velocity_threshold"`
	VelocityMultiplier int           `mapstructure:"velocity_multiplier"`
	VelocityMaxWeight  int           `mapstructure:"velocity_max_weight"`

	// Disabled lists built-in rule ids to leave out of the catalog.
	Disabled []string `mapstructure:"disabled"`

	// CatalogFile is an optional YAML file of dynamic rule definitions.
	CatalogFile string `mapstructure:"catalog_file"`

	// UseRepositoryCatalog loads dynamic rule definitions from the database.
	UseRepositoryCatalog bool `mapstructure:"use_repository_catalog"`
}

// CombineStrategy selects how the policy and advisory scores are merged.
type CombineStrategy string

const (
	// StrategyBlended escalates mandatory flags to MandatoryFloor and
	// otherwise blends policy and advisory scores.
	StrategyBlended CombineStrategy = "blended"

	// StrategyCappedSum ignores the advisory score: min(policy, 100).
	StrategyCappedSum CombineStrategy = "capped_sum"
)

// ScoringConfig holds the combiner and classifier settings.
type ScoringConfig struct {
	Strategy       CombineStrategy `mapstructure:"strategy"`
	PolicyWeight   float64         `mapstructure:"policy_weight"`
	AdvisoryWeight float64         `mapstructure:"advisory_weight"`
	MandatoryFloor int             `mapstructure:"mandatory_floor"`

	SMRThreshold int `mapstructure:"smr_threshold"`
	EDDThreshold int `mapstructure:"edd_threshold"`

	BusinessDays       int           `mapstructure:"business_days"`
	TimeCriticalWindow time.Duration `mapstructure:"time_critical_window"`
	TimeCriticalFlags  []string      `mapstructure:"time_critical_flags"`
	ReportingTimezone  string        `mapstructure:"reporting_timezone"`
}

// BatchConfig bounds batch processing.
type BatchConfig struct {
	MaxBatchSize int           `mapstructure:"max_batch_size"`
	ChunkSize    int           `mapstructure:"chunk_size"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Publish      bool          `mapstructure:"publish"`
}

// AdvisoryConfig selects the advisory scorer.
type AdvisoryConfig struct {
	// Type is "none" or "bus"
	Type    string        `mapstructure:"type"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WorkerConfig holds async worker settings.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Deployment is the deployment tier. It is unrelated to the
// compliance Tier carried by a scorecard.
type Deployment string

const (
	// TierCommunity is the single-node tier with SQLite + channels
	TierCommunity Deployment = "community"

	// TierPro uses PostgreSQL + NATS + Redis
	TierPro Deployment = "pro"
)

// DefaultEngineConfig returns the documented default scoring constants.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Rules: RulesConfig{
			LargeAmountThreshold: 10000,
			LargeAmountStep:      1000,
			LargeAmountMaxWeight: 30,
			CriticalAmount:       100000,
			StructuringFloor:     9000,
			StructuringWeight:    25,
			RoundAmountWeight:    10,
			HighRiskCountries:    []string{"AF", "IR", "KP", "MM", "SY", "YE"},
			HighRiskWeight:       20,
			CashTypes:            []string{"cash", "cash_deposit", "cash_withdrawal", "atm"},
			CashWeight:           15,
			SanctionsKeywords:    []string{"sanctioned", "embargo"},
			SanctionsSimilarity:  0.9,
			SanctionsWeight:      35,
			VelocityWindow:       24 * time.Hour,
			VelocityThreshold:    5,
			VelocityMultiplier:   3,
			VelocityMaxWeight:    20,

			ProfileLowCeiling:     2000,
			ProfileMediumCeiling:  5000,
			ProfileHighCeiling:    15000,
			LowIncomeOccupations:  []string{"student", "unemployed", "retired"},
			ProfileModerateRatio:  3,
			ProfileSevereRatio:    10,
			ProfileModerateWeight: 10,
			ProfileSevereWeight:   15,

			UseRepositoryCatalog: true,
		},
		Scoring: ScoringConfig{
			Strategy:           StrategyBlended,
			PolicyWeight:       0.7,
			AdvisoryWeight:     0.3,
			MandatoryFloor:     90,
			SMRThreshold:       60,
			EDDThreshold:       30,
			BusinessDays:       3,
			TimeCriticalWindow: 24 * time.Hour,
			TimeCriticalFlags:  []string{FlagSanctionsHit},
			ReportingTimezone:  "UTC",
		},
		Batch: BatchConfig{
			MaxBatchSize: 10000,
			ChunkSize:    100,
			Timeout:      30 * time.Second,
			Publish:      true,
		},
		Advisory: AdvisoryConfig{
			Type:    "none",
			Timeout: 2 * time.Second,
		},
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier:   TierCommunity,
		Engine: DefaultEngineConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ProfileTTL:   5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		ProfileTTL:     5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
