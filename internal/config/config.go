package config

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/andre-sav/HADES-sub001/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	ICP      ICPConfig      `yaml:"icp" mapstructure:"icp"`
	Dedup    DedupConfig    `yaml:"dedup" mapstructure:"dedup"`
	Budget   BudgetConfig   `yaml:"budget" mapstructure:"budget"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// ProviderConfig holds lead-provider API settings.
type ProviderConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Token       string  `yaml:"token" mapstructure:"token"`
	PageSize    int     `yaml:"page_size" mapstructure:"page_size"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// ScoringConfig supplies the weights and mapping tables the scoring engine
// reads. Engines take a value copy per run so a retune never changes a batch
// mid-flight.
type ScoringConfig struct {
	IntentWeights     IntentWeights    `yaml:"intent_weights" mapstructure:"intent_weights"`
	GeoWeights        GeoWeights       `yaml:"geo_weights" mapstructure:"geo_weights"`
	SICOnsite         SICOnsiteTable   `yaml:"sic_onsite_table" mapstructure:"sic_onsite_table"`
	FreshnessTiers    FreshnessTiers   `yaml:"freshness_tiers" mapstructure:"freshness_tiers"`
	SearchRadiusMiles float64          `yaml:"search_radius_miles" mapstructure:"search_radius_miles"`
	EmployeeScale     []EmployeeBucket `yaml:"employee_scale" mapstructure:"employee_scale"`
	// Origin of the geography search, used to derive a distance when the
	// provider returns coordinates without one. Zero values disable
	// derivation.
	OriginLat float64 `yaml:"origin_lat" mapstructure:"origin_lat"`
	OriginLng float64 `yaml:"origin_lng" mapstructure:"origin_lng"`
}

// IntentWeights weights the intent composite. The engine normalizes by the
// weight sum, so 50/25/25 and 0.5/0.25/0.25 behave identically.
type IntentWeights struct {
	Signal    float64 `yaml:"signal" mapstructure:"signal"`
	Onsite    float64 `yaml:"onsite" mapstructure:"onsite"`
	Freshness float64 `yaml:"freshness" mapstructure:"freshness"`
}

// GeoWeights weights the geography composite.
type GeoWeights struct {
	Proximity float64 `yaml:"proximity" mapstructure:"proximity"`
	Onsite    float64 `yaml:"onsite" mapstructure:"onsite"`
	Employee  float64 `yaml:"employee" mapstructure:"employee"`
}

// SICOnsiteTable lists SIC codes by on-site service likelihood band.
// Codes absent from every band contribute zero to the composite.
type SICOnsiteTable struct {
	High   []string `yaml:"high" mapstructure:"high"`
	Medium []string `yaml:"medium" mapstructure:"medium"`
	Low    []string `yaml:"low" mapstructure:"low"`
}

// FreshnessTiers holds the inclusive upper age bound, in days, of each
// tier. Ages past CoolingMaxDays are stale and filtered before scoring.
type FreshnessTiers struct {
	HotMaxDays     int `yaml:"hot_max_days" mapstructure:"hot_max_days"`
	WarmMaxDays    int `yaml:"warm_max_days" mapstructure:"warm_max_days"`
	CoolingMaxDays int `yaml:"cooling_max_days" mapstructure:"cooling_max_days"`
}

// EmployeeBucket maps an employee-count floor to a scale value in [0,100].
// The engine picks the highest bucket whose Min is at or below the count.
type EmployeeBucket struct {
	Min   int     `yaml:"min" mapstructure:"min"`
	Value float64 `yaml:"value" mapstructure:"value"`
}

// ICPConfig is the eligibility filter applied before scoring.
type ICPConfig struct {
	EmployeeMin  int      `yaml:"employee_min" mapstructure:"employee_min"`
	SICWhitelist []string `yaml:"sic_whitelist" mapstructure:"sic_whitelist"`
}

// DedupConfig configures the deduplication engine.
type DedupConfig struct {
	CrossWorkflow   bool `yaml:"cross_workflow" mapstructure:"cross_workflow"`
	ExcludeExported bool `yaml:"exclude_exported" mapstructure:"exclude_exported"`
}

// BudgetConfig holds weekly credit caps per workflow plus alerting knobs.
type BudgetConfig struct {
	IntentWeekly    int       `yaml:"intent_weekly" mapstructure:"intent_weekly"`
	GeoWeekly       int       `yaml:"geo_weekly" mapstructure:"geo_weekly"`
	AlertThresholds []float64 `yaml:"alert_thresholds" mapstructure:"alert_thresholds"`
	WebhookURL      string    `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// CapFor returns the weekly credit cap for a workflow. Zero means no cap is
// configured, which the budget controller treats as a configuration defect.
func (b BudgetConfig) CapFor(w model.Workflow) int {
	switch w {
	case model.WorkflowIntent:
		return b.IntentWeekly
	case model.WorkflowGeography:
		return b.GeoWeekly
	default:
		return 0
	}
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HADES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "hades.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("provider.page_size", 100)
	v.SetDefault("provider.rate_limit", 5.0)
	v.SetDefault("provider.burst", 5)
	v.SetDefault("provider.timeout_secs", 30)
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("scoring.intent_weights.signal", 0.50)
	v.SetDefault("scoring.intent_weights.onsite", 0.25)
	v.SetDefault("scoring.intent_weights.freshness", 0.25)
	v.SetDefault("scoring.geo_weights.proximity", 0.50)
	v.SetDefault("scoring.geo_weights.onsite", 0.30)
	v.SetDefault("scoring.geo_weights.employee", 0.20)
	v.SetDefault("scoring.freshness_tiers.hot_max_days", 3)
	v.SetDefault("scoring.freshness_tiers.warm_max_days", 7)
	v.SetDefault("scoring.freshness_tiers.cooling_max_days", 14)
	v.SetDefault("scoring.search_radius_miles", 50.0)
	v.SetDefault("scoring.sic_onsite_table.high", []string{"1521", "1711", "1731", "0782", "7349"})
	v.SetDefault("scoring.sic_onsite_table.medium", []string{"5411", "5812", "8011"})
	v.SetDefault("scoring.sic_onsite_table.low", []string{"6411", "7372", "8721"})
	v.SetDefault("scoring.employee_scale", []map[string]any{
		{"min": 10, "value": 25},
		{"min": 25, "value": 40},
		{"min": 50, "value": 55},
		{"min": 100, "value": 70},
		{"min": 200, "value": 85},
		{"min": 500, "value": 100},
	})
	v.SetDefault("icp.employee_min", 10)
	v.SetDefault("dedup.cross_workflow", true)
	v.SetDefault("dedup.exclude_exported", false)
	v.SetDefault("budget.intent_weekly", 500)
	v.SetDefault("budget.geo_weekly", 500)
	v.SetDefault("budget.alert_thresholds", []float64{0.5, 0.8, 0.95})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given command mode: "qualify"
// covers scoring, dedup, and budget settings; "budget" covers caps and
// alert thresholds; "serve" covers everything qualify does plus the server
// port. A failed validation aborts the run before any paid query executes.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "qualify":
		errs = append(errs, c.scoringErrs()...)
		errs = append(errs, c.budgetErrs()...)
	case "budget":
		errs = append(errs, c.budgetErrs()...)
	case "serve":
		errs = append(errs, c.scoringErrs()...)
		errs = append(errs, c.budgetErrs()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s validation failed: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) scoringErrs() []string {
	var errs []string
	s := c.Scoring

	iw := s.IntentWeights
	if iw.Signal < 0 || iw.Onsite < 0 || iw.Freshness < 0 {
		errs = append(errs, "scoring.intent_weights values must be >= 0")
	}
	if iw.Signal+iw.Onsite+iw.Freshness <= 0 {
		errs = append(errs, "scoring.intent_weights must not sum to zero")
	}

	gw := s.GeoWeights
	if gw.Proximity < 0 || gw.Onsite < 0 || gw.Employee < 0 {
		errs = append(errs, "scoring.geo_weights values must be >= 0")
	}
	if gw.Proximity+gw.Onsite+gw.Employee <= 0 {
		errs = append(errs, "scoring.geo_weights must not sum to zero")
	}

	ft := s.FreshnessTiers
	if ft.HotMaxDays < 0 || ft.WarmMaxDays <= ft.HotMaxDays || ft.CoolingMaxDays <= ft.WarmMaxDays {
		errs = append(errs, "scoring.freshness_tiers must be strictly increasing")
	}

	if s.SearchRadiusMiles <= 0 {
		errs = append(errs, "scoring.search_radius_miles must be > 0")
	}

	buckets := make([]EmployeeBucket, len(s.EmployeeScale))
	copy(buckets, s.EmployeeScale)
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Min < buckets[j].Min })
	for i, b := range buckets {
		if b.Value < 0 || b.Value > 100 {
			errs = append(errs, "scoring.employee_scale values must be between 0 and 100")
			break
		}
		if i > 0 && b.Min == buckets[i-1].Min {
			errs = append(errs, "scoring.employee_scale bucket mins must be unique")
			break
		}
		if i > 0 && b.Value < buckets[i-1].Value {
			errs = append(errs, "scoring.employee_scale values must be monotonic in min")
			break
		}
	}

	if c.ICP.EmployeeMin < 0 {
		errs = append(errs, "icp.employee_min must be >= 0")
	}

	return errs
}

func (c *Config) budgetErrs() []string {
	var errs []string
	b := c.Budget

	if b.IntentWeekly < 0 || b.GeoWeekly < 0 {
		errs = append(errs, "budget caps must be >= 0")
	}

	for i, th := range b.AlertThresholds {
		if th <= 0 || th >= 1 {
			errs = append(errs, "budget.alert_thresholds must be fractions between 0 and 1")
			break
		}
		if i > 0 && th <= b.AlertThresholds[i-1] {
			errs = append(errs, "budget.alert_thresholds must be strictly ascending")
			break
		}
	}

	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
