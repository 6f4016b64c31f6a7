package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Subgraph.URL = "http://localhost:8080/subgraphs/liquity"
	return cfg
}

func TestDefaultsNeedSubgraphForFullMode(t *testing.T) {
	require := require.New(t)

	cfg := Defaults()
	err := cfg.Validate()
	require.Error(err)
	require.Contains(err.Error(), "subgraph: url is required")

	cfg.Mode = "server"
	require.NoError(cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	require := require.New(t)

	cfg := validConfig()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Engine.MinDebt = "two thousand"
	cfg.Engine.ResidualTolerance = "-1"
	cfg.Redis.Addr = ""
	cfg.Oracle.RPCURL = "http://localhost:8545"
	cfg.Oracle.Aggregator = "not-an-address"

	err := cfg.Validate()
	require.Error(err)
	msg := err.Error()
	require.Contains(msg, `unknown mode "trade"`)
	require.Contains(msg, `unknown log_level "loud"`)
	require.Contains(msg, "engine: min_debt")
	require.Contains(msg, "engine: residual_tolerance must not be negative")
	require.Contains(msg, "redis: addr must not be empty")
	require.Contains(msg, "oracle: aggregator")
}

func TestValidateExportCronOnlyWhenExporting(t *testing.T) {
	require := require.New(t)

	cfg := validConfig()
	cfg.Pipeline.ExportCron = "every night"
	require.NoError(cfg.Validate())

	cfg.S3.Enabled = true
	err := cfg.Validate()
	require.Error(err)
	require.Contains(err.Error(), `pipeline: export_cron "every night"`)

	cfg.Pipeline.ExportCron = "@daily"
	require.NoError(cfg.Validate())
}

func TestEngineParams(t *testing.T) {
	require := require.New(t)

	cfg := validConfig()
	minDebt, penalty, tol, err := cfg.EngineParams()
	require.NoError(err)
	require.Equal("2000", minDebt.String())
	require.Equal("0.05", penalty.String())
	require.Equal("0.000001", tol.String())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "server"

[engine]
min_debt = "1800"
rebuild_lock_ttl = "45s"

[redis]
timeline_ttl = "2m"
`
	require.NoError(os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("TROVELEDGER_SERVER_PORT", "9090")
	t.Setenv("TROVELEDGER_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TROVELEDGER_PIPELINE_SCRAPE_INTERVAL", "15s")

	cfg, err := Load(path)
	require.NoError(err)
	require.Equal("server", cfg.Mode)
	require.Equal("1800", cfg.Engine.MinDebt)
	require.Equal(45*time.Second, cfg.Engine.RebuildLockTTL.Duration)
	require.Equal(2*time.Minute, cfg.Redis.TimelineTTL.Duration)
	require.Equal(9090, cfg.Server.Port)
	require.Equal([]string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.Equal(15*time.Second, cfg.Pipeline.ScrapeInterval.Duration)
	// Untouched defaults survive.
	require.Equal("0.05", cfg.Engine.PoolLiquidationPenalty)
	require.NoError(cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	require := require.New(t)

	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "k"
	cfg.Oracle.RPCURL = "https://mainnet.example/v3/secret"

	out := RedactedConfig(&cfg)
	require.Equal(redacted, out.Postgres.Password)
	require.Equal(redacted, out.Server.APIKey)
	require.Equal(redacted, out.Oracle.RPCURL)
	require.Empty(out.S3.SecretKey)

	out.Notify.Events[0] = "changed"
	require.Equal("integrity_error", cfg.Notify.Events[0])
	require.Equal("hunter2", cfg.Postgres.Password)
}
