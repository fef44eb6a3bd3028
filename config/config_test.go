package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/oddspool/config"
	"github.com/alejandrodnm/oddspool/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"LOG_LEVEL", "LOG_FORMAT", "ODDSPOOL_DSN", "ODDSPOOL_LISTEN", "ODDSPOOL_RPC_URL", "ODDSPOOL_PRIVATE_KEY"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 9, cfg.Pool.Decimals)
	assert.Equal(t, 7*24*time.Hour, cfg.Pool.MaturityWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.Pool.ValidityWindow)
	assert.Equal(t, time.Minute, cfg.Chain.ReconcileInterval)
	assert.Equal(t, "oddspool.db", cfg.Storage.DSN)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.False(t, cfg.OnChain())

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, "1000000000", pc.Ledger.Scale.Dec())
	assert.Equal(t, "50000000", pc.Ledger.Margin.Dec())
	assert.Equal(t, "1000000000", pc.Ledger.MinBet.Dec())
	assert.Equal(t, "20000000000000", pc.Ledger.Reinforcement.Dec())
	assert.Equal(t, uint64(1000), pc.Ledger.MaxReserveRatio)
	assert.Equal(t, common.HexToAddress("0x01"), pc.Account)
}

func TestLoad_PoolSection(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeConfig(t, `
pool:
  account: "0x00000000000000000000000000000000000000aa"
  decimals: 6
  margin: "0.1"
  reinforcement: "500.5"
  min_bet: "0.25"
  max_reserve_ratio: 50
  maturity_window: 48h
  validity_window: 24h
`))
	require.NoError(t, err)

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, "1000000", pc.Ledger.Scale.Dec())
	assert.Equal(t, "100000", pc.Ledger.Margin.Dec())
	assert.Equal(t, "500500000", pc.Ledger.Reinforcement.Dec())
	assert.Equal(t, "250000", pc.Ledger.MinBet.Dec())
	assert.Equal(t, uint64(50), pc.Ledger.MaxReserveRatio)
	assert.Equal(t, 48*time.Hour, pc.MaturityWindow)
	assert.Equal(t, 24*time.Hour, pc.ValidityWindow)
	assert.Equal(t, common.HexToAddress("0xaa"), pc.Account)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("ODDSPOOL_DSN", ":memory:")
	t.Setenv("ODDSPOOL_LISTEN", "127.0.0.1:9000")
	t.Setenv("ODDSPOOL_RPC_URL", "http://localhost:8545")
	t.Setenv("ODDSPOOL_PRIVATE_KEY", "0xabc")

	cfg, err := config.Load(writeConfig(t, `
storage:
  dsn: from-yaml.db
log:
  format: text
`))
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, "0xabc", cfg.Chain.PrivateKey)
	assert.True(t, cfg.OnChain())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.Load: read")
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := config.Load(writeConfig(t, "pool: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse YAML")
}

func TestPoolConfig_Rejects(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"margin too precise": "pool:\n  margin: \"0.0000000001\"\n",
		"margin of one":      "pool:\n  margin: \"1\"\n",
		"bad min bet":        "pool:\n  min_bet: \"ten\"\n",
		"bad account":        "pool:\n  account: \"pool\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, body))
			require.NoError(t, err)
			_, err = cfg.PoolConfig()
			assert.Error(t, err)
		})
	}
}

func TestRoleSeed(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeConfig(t, `
roles:
  admins: ["0x00000000000000000000000000000000000000a1"]
  oracles:
    - "0x00000000000000000000000000000000000000b1"
    - "0x00000000000000000000000000000000000000b2"
`))
	require.NoError(t, err)

	seed, err := cfg.RoleSeed()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{common.HexToAddress("0xa1")}, seed[domain.RoleAdmin])
	assert.Len(t, seed[domain.RoleOracle], 2)
	assert.Empty(t, seed[domain.RoleMaintainer])

	cfg.Roles.Maintainers = []string{"nobody"}
	_, err = cfg.RoleSeed()
	assert.Error(t, err)
}

func TestFaucetBalances(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeConfig(t, `
chain:
  faucet:
    "0x00000000000000000000000000000000000000c1": "100000"
    "0x00000000000000000000000000000000000000c2": "2.5"
`))
	require.NoError(t, err)

	bal, err := cfg.FaucetBalances()
	require.NoError(t, err)
	assert.Equal(t, "100000000000000", bal[common.HexToAddress("0xc1")].Dec())
	assert.Equal(t, "2500000000", bal[common.HexToAddress("0xc2")].Dec())
}
