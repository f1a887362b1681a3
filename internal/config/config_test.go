package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/andre-sav/HADES-sub001/internal/model"
)

// chtemp runs the test from an empty directory so no config.yaml is found.
func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "hades.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Provider.PageSize)
	assert.Equal(t, 3, cfg.Provider.MaxRetries)
	assert.InDelta(t, 0.50, cfg.Scoring.IntentWeights.Signal, 0.001)
	assert.InDelta(t, 0.25, cfg.Scoring.IntentWeights.Onsite, 0.001)
	assert.InDelta(t, 0.25, cfg.Scoring.IntentWeights.Freshness, 0.001)
	assert.InDelta(t, 0.50, cfg.Scoring.GeoWeights.Proximity, 0.001)
	assert.InDelta(t, 0.30, cfg.Scoring.GeoWeights.Onsite, 0.001)
	assert.InDelta(t, 0.20, cfg.Scoring.GeoWeights.Employee, 0.001)
	assert.Equal(t, 3, cfg.Scoring.FreshnessTiers.HotMaxDays)
	assert.Equal(t, 7, cfg.Scoring.FreshnessTiers.WarmMaxDays)
	assert.Equal(t, 14, cfg.Scoring.FreshnessTiers.CoolingMaxDays)
	assert.InDelta(t, 50.0, cfg.Scoring.SearchRadiusMiles, 0.001)
	assert.Contains(t, cfg.Scoring.SICOnsite.High, "1711")
	assert.Len(t, cfg.Scoring.EmployeeScale, 6)
	assert.Equal(t, 10, cfg.ICP.EmployeeMin)
	assert.True(t, cfg.Dedup.CrossWorkflow)
	assert.False(t, cfg.Dedup.ExcludeExported)
	assert.Equal(t, 500, cfg.Budget.IntentWeekly)
	assert.Equal(t, 500, cfg.Budget.GeoWeekly)
	assert.Equal(t, []float64{0.5, 0.8, 0.95}, cfg.Budget.AlertThresholds)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chtemp(t)

	yamlDoc := `
store:
  driver: postgres
  database_url: postgres://localhost/hades
log:
  level: debug
  format: console
budget:
  intent_weekly: 750
scoring:
  freshness_tiers:
    hot_max_days: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlDoc), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/hades", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 750, cfg.Budget.IntentWeekly)
	assert.Equal(t, 2, cfg.Scoring.FreshnessTiers.HotMaxDays)
	// Defaults still apply for unset values
	assert.Equal(t, 500, cfg.Budget.GeoWeekly)
	assert.Equal(t, 7, cfg.Scoring.FreshnessTiers.WarmMaxDays)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chtemp(t)

	yamlDoc := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlDoc), 0644))

	t.Setenv("HADES_STORE_DRIVER", "postgres")
	t.Setenv("HADES_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtemp(t)

	t.Setenv("HADES_BUDGET_INTENT_WEEKLY", "250")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Budget.IntentWeekly)
}

func TestTemplateMatchesDefaults(t *testing.T) {
	chtemp(t)

	defaults, err := Load()
	require.NoError(t, err)

	var fromTemplate Config
	require.NoError(t, yaml.Unmarshal([]byte(Template), &fromTemplate))

	assert.Equal(t, defaults.Store, fromTemplate.Store)
	assert.Equal(t, defaults.Provider, fromTemplate.Provider)
	assert.Equal(t, defaults.Scoring, fromTemplate.Scoring)
	assert.Equal(t, defaults.Dedup, fromTemplate.Dedup)
	assert.Equal(t, defaults.Budget, fromTemplate.Budget)
	assert.Equal(t, defaults.Server, fromTemplate.Server)
	assert.Equal(t, defaults.Log, fromTemplate.Log)
	assert.Equal(t, defaults.ICP.EmployeeMin, fromTemplate.ICP.EmployeeMin)
	assert.Empty(t, fromTemplate.ICP.SICWhitelist)
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, WriteTemplate(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Template, string(data))

	err = WriteTemplate(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	assert.NoError(t, WriteTemplate(path, true))
}

// validDefaults returns a Config that passes every validation mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Scoring.IntentWeights = IntentWeights{Signal: 0.5, Onsite: 0.25, Freshness: 0.25}
	cfg.Scoring.GeoWeights = GeoWeights{Proximity: 0.5, Onsite: 0.3, Employee: 0.2}
	cfg.Scoring.FreshnessTiers = FreshnessTiers{HotMaxDays: 3, WarmMaxDays: 7, CoolingMaxDays: 14}
	cfg.Scoring.SearchRadiusMiles = 50
	cfg.Scoring.EmployeeScale = []EmployeeBucket{{Min: 10, Value: 25}, {Min: 50, Value: 55}}
	cfg.ICP.EmployeeMin = 10
	cfg.Budget.IntentWeekly = 500
	cfg.Budget.GeoWeekly = 500
	cfg.Budget.AlertThresholds = []float64{0.5, 0.8, 0.95}
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateQualify_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("qualify"))
}

func TestValidateQualify_ZeroWeights(t *testing.T) {
	cfg := validDefaults()
	cfg.Scoring.IntentWeights = IntentWeights{}

	err := cfg.Validate("qualify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoring.intent_weights must not sum to zero")
}

func TestValidateQualify_NegativeWeight(t *testing.T) {
	cfg := validDefaults()
	cfg.Scoring.GeoWeights.Proximity = -0.5

	err := cfg.Validate("qualify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoring.geo_weights values must be >= 0")
}

func TestValidateQualify_TierOrder(t *testing.T) {
	cfg := validDefaults()
	cfg.Scoring.FreshnessTiers = FreshnessTiers{HotMaxDays: 7, WarmMaxDays: 3, CoolingMaxDays: 14}

	err := cfg.Validate("qualify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "freshness_tiers must be strictly increasing")
}

func TestValidateQualify_EmployeeScale(t *testing.T) {
	cfg := validDefaults()
	cfg.Scoring.EmployeeScale = []EmployeeBucket{{Min: 10, Value: 150}}

	err := cfg.Validate("qualify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "employee_scale values must be between 0 and 100")

	cfg.Scoring.EmployeeScale = []EmployeeBucket{{Min: 10, Value: 40}, {Min: 50, Value: 20}}
	err = cfg.Validate("qualify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be monotonic")

	cfg.Scoring.EmployeeScale = []EmployeeBucket{{Min: 10, Value: 40}, {Min: 10, Value: 55}}
	err = cfg.Validate("qualify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mins must be unique")
}

func TestValidateBudget_Thresholds(t *testing.T) {
	cfg := validDefaults()
	cfg.Budget.AlertThresholds = []float64{0.5, 1.5}

	err := cfg.Validate("budget")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fractions between 0 and 1")

	cfg.Budget.AlertThresholds = []float64{0.8, 0.5}
	err = cfg.Validate("budget")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly ascending")

	cfg.Budget.AlertThresholds = nil
	assert.NoError(t, cfg.Validate("budget"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestCapFor(t *testing.T) {
	t.Parallel()

	b := BudgetConfig{IntentWeekly: 500, GeoWeekly: 300}
	assert.Equal(t, 500, b.CapFor(model.WorkflowIntent))
	assert.Equal(t, 300, b.CapFor(model.WorkflowGeography))
	assert.Equal(t, 0, b.CapFor(model.Workflow("other")))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
