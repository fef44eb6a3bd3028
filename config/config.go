package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/oddspool/internal/application/pool"
	"github.com/alejandrodnm/oddspool/internal/domain"
)

// Config is the full oddspool configuration.
type Config struct {
	Pool    PoolConfig    `yaml:"pool"`
	Roles   RolesConfig   `yaml:"roles"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Chain   ChainConfig   `yaml:"chain"`
	Log     LogConfig     `yaml:"log"`
}

// PoolConfig holds the protocol parameters. Amounts are decimal strings in
// whole units ("20000", "0.5") and are scaled by 10^Decimals.
type PoolConfig struct {
	Account         string        `yaml:"account"`  // pool address on the in-memory token
	Decimals        int           `yaml:"decimals"` // fixed-point precision, scale = 10^decimals
	Margin          string        `yaml:"margin"`   // fraction, "0.05" = 5%
	Reinforcement   string        `yaml:"reinforcement"`
	MinBet          string        `yaml:"min_bet"`
	MaxReserveRatio uint64        `yaml:"max_reserve_ratio"`
	MaturityWindow  time.Duration `yaml:"maturity_window"`
	ValidityWindow  time.Duration `yaml:"validity_window"`
}

// RolesConfig seeds the role table.
type RolesConfig struct {
	Admins      []string `yaml:"admins"`
	Oracles     []string `yaml:"oracles"`
	Maintainers []string `yaml:"maintainers"`
}

// StorageConfig controls where the event journal lives.
type StorageConfig struct {
	DSN       string        `yaml:"dsn"`       // SQLite file path, or ":memory:"
	Retention time.Duration `yaml:"retention"` // 0 keeps events forever
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen            string        `yaml:"listen"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

// ChainConfig selects the settlement asset. With an empty RPCURL the pool
// settles on an in-memory token funded from Faucet.
type ChainConfig struct {
	RPCURL            string            `yaml:"rpc_url"`
	ChainID           int64             `yaml:"chain_id"`
	Token             string            `yaml:"token"`
	PrivateKey        string            `yaml:"private_key"`
	ReceiptTimeout    time.Duration     `yaml:"receipt_timeout"`
	ReconcileInterval time.Duration     `yaml:"reconcile_interval"` // how often unconfirmed transfers are looked up
	Faucet            map[string]string `yaml:"faucet"`             // address -> whole units
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file at path after loading .env if present.
// Environment variables override the matching YAML keys.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// OnChain reports whether settlement goes through an ERC20 contract.
func (c *Config) OnChain() bool { return c.Chain.RPCURL != "" }

// Scale is 10^Pool.Decimals.
func (c *Config) Scale() *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(c.Pool.Decimals)))
}

// Amount parses a whole-unit decimal string at the pool's precision.
func (c *Config) Amount(s string) (*uint256.Int, error) {
	return domain.ParseFixed(s, c.Pool.Decimals)
}

// PoolConfig converts the pool section into pool.Config. The pool account is
// left for the caller when settling on chain, where it is the signing key.
func (c *Config) PoolConfig() (pool.Config, error) {
	out := pool.DefaultConfig()
	out.MaturityWindow = c.Pool.MaturityWindow
	out.ValidityWindow = c.Pool.ValidityWindow
	out.Ledger.Scale = *c.Scale()
	out.Ledger.MaxReserveRatio = c.Pool.MaxReserveRatio

	for _, f := range []struct {
		name string
		raw  string
		dst  *uint256.Int
	}{
		{"margin", c.Pool.Margin, &out.Ledger.Margin},
		{"reinforcement", c.Pool.Reinforcement, &out.Ledger.Reinforcement},
		{"min_bet", c.Pool.MinBet, &out.Ledger.MinBet},
	} {
		v, err := c.Amount(f.raw)
		if err != nil {
			return pool.Config{}, fmt.Errorf("config.PoolConfig: %s: %w", f.name, err)
		}
		f.dst.Set(v)
	}
	if out.Ledger.Margin.Cmp(&out.Ledger.Scale) >= 0 {
		return pool.Config{}, fmt.Errorf("config.PoolConfig: margin %s must be below 1", c.Pool.Margin)
	}

	if !c.OnChain() {
		account, err := parseAddress(c.Pool.Account)
		if err != nil {
			return pool.Config{}, fmt.Errorf("config.PoolConfig: account: %w", err)
		}
		out.Account = account
	}
	return out, nil
}

// RoleSeed converts the roles section into the seed for access.NewRoles.
func (c *Config) RoleSeed() (map[domain.Role][]common.Address, error) {
	seed := make(map[domain.Role][]common.Address)
	for role, list := range map[domain.Role][]string{
		domain.RoleAdmin:      c.Roles.Admins,
		domain.RoleOracle:     c.Roles.Oracles,
		domain.RoleMaintainer: c.Roles.Maintainers,
	} {
		for _, raw := range list {
			a, err := parseAddress(raw)
			if err != nil {
				return nil, fmt.Errorf("config.RoleSeed: %s: %w", role, err)
			}
			seed[role] = append(seed[role], a)
		}
	}
	return seed, nil
}

// FaucetBalances parses chain.faucet into raw amounts per account.
func (c *Config) FaucetBalances() (map[common.Address]*uint256.Int, error) {
	out := make(map[common.Address]*uint256.Int, len(c.Chain.Faucet))
	for raw, amount := range c.Chain.Faucet {
		a, err := parseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("config.FaucetBalances: %w", err)
		}
		v, err := c.Amount(amount)
		if err != nil {
			return nil, fmt.Errorf("config.FaucetBalances: %s: %w", raw, err)
		}
		out[a] = v
	}
	return out, nil
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// applyEnvOverrides replaces values with environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ODDSPOOL_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("ODDSPOOL_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("ODDSPOOL_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("ODDSPOOL_PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKey = v
	}
}

// setDefaults fills every value the pool needs to start.
func setDefaults(cfg *Config) {
	if cfg.Pool.Account == "" {
		cfg.Pool.Account = "0x0000000000000000000000000000000000000001"
	}
	if cfg.Pool.Decimals <= 0 {
		cfg.Pool.Decimals = 9
	}
	cfg.Pool.Decimals = min(cfg.Pool.Decimals, 18)
	if cfg.Pool.Margin == "" {
		cfg.Pool.Margin = "0.05"
	}
	if cfg.Pool.Reinforcement == "" {
		cfg.Pool.Reinforcement = "20000"
	}
	if cfg.Pool.MinBet == "" {
		cfg.Pool.MinBet = "1"
	}
	if cfg.Pool.MaxReserveRatio == 0 {
		cfg.Pool.MaxReserveRatio = 1000
	}
	if cfg.Pool.MaturityWindow <= 0 {
		cfg.Pool.MaturityWindow = pool.DefaultMaturityWindow
	}
	if cfg.Pool.ValidityWindow <= 0 {
		cfg.Pool.ValidityWindow = cfg.Pool.MaturityWindow
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "oddspool.db"
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.RequestsPerSecond <= 0 || math.IsInf(cfg.Server.RequestsPerSecond, 0) {
		cfg.Server.RequestsPerSecond = 20
	}
	if cfg.Server.Burst <= 0 {
		cfg.Server.Burst = 40
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 90 * time.Second
	}
	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = 137
	}
	if cfg.Chain.ReceiptTimeout <= 0 {
		cfg.Chain.ReceiptTimeout = 60 * time.Second
	}
	if cfg.Chain.ReconcileInterval <= 0 {
		cfg.Chain.ReconcileInterval = time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
