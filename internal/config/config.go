// Package config loads tokenbench settings from config.yaml, TOKENBENCH_*
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/viper"

	"TokenBench/internal/bench"
	"TokenBench/utils"
)

var ErrInvalidConfig = errors.New("invalid config")

const EnvPrefix = "TOKENBENCH"

type SolanaConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	WSURL          string        `mapstructure:"ws_url"` // 可选：为空时轮询 getSignatureStatuses
	KeypairPath    string        `mapstructure:"keypair_path"`
	PayerSecret    string        `mapstructure:"payer_secret"` // base58
	Commitment     string        `mapstructure:"commitment"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	SkipPreflight  bool          `mapstructure:"skip_preflight"`
}

type BenchConfig struct {
	NumKeypairs      int    `mapstructure:"num_keypairs"`
	TokenProgramID   string `mapstructure:"token_program_id"`
	MintDecimals     uint8  `mapstructure:"mint_decimals"`
	FundAmount       uint64 `mapstructure:"fund_amount"` // 0 表示 num_keypairs
	TransferAmount   uint64 `mapstructure:"transfer_amount"`
	Concurrency      int    `mapstructure:"concurrency"`
	ComputeUnitLimit uint32 `mapstructure:"compute_unit_limit"`
	ComputeUnitPrice uint64 `mapstructure:"compute_unit_price"` // microlamports
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "mysql" | "sqlite" | ""
	DSN    string `mapstructure:"dsn"`
}

type AppConfig struct {
	Listen string `mapstructure:"listen"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type Config struct {
	Solana SolanaConfig `mapstructure:"solana"`
	Bench  BenchConfig  `mapstructure:"bench"`
	Store  StoreConfig  `mapstructure:"store"`
	App    AppConfig    `mapstructure:"app"`
	Log    LogConfig    `mapstructure:"log"`
}

// SetDefaults registers every key so environment overrides apply to it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("solana.rpc_url", "http://127.0.0.1:8899")
	v.SetDefault("solana.ws_url", "")
	v.SetDefault("solana.keypair_path", "")
	v.SetDefault("solana.payer_secret", "")
	v.SetDefault("solana.commitment", string(rpc.CommitmentConfirmed))
	v.SetDefault("solana.confirm_timeout", 60*time.Second)
	v.SetDefault("solana.poll_interval", 500*time.Millisecond)
	v.SetDefault("solana.skip_preflight", false)

	v.SetDefault("bench.num_keypairs", 400)
	v.SetDefault("bench.token_program_id", solana.TokenProgramID.String())
	v.SetDefault("bench.mint_decimals", 6)
	v.SetDefault("bench.fund_amount", 0)
	v.SetDefault("bench.transfer_amount", 1)
	v.SetDefault("bench.concurrency", 1)
	v.SetDefault("bench.compute_unit_limit", 0)
	v.SetDefault("bench.compute_unit_price", 0)

	v.SetDefault("store.driver", "")
	v.SetDefault("store.dsn", "")

	v.SetDefault("app.listen", "127.0.0.1:8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// New returns a viper instance reading ./config.yaml and TOKENBENCH_* env.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the config file if present, then unmarshals and validates.
// A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("%w: solana.rpc_url is empty", ErrInvalidConfig)
	}
	switch rpc.CommitmentType(c.Solana.Commitment) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("%w: solana.commitment %q must be processed, confirmed or finalized", ErrInvalidConfig, c.Solana.Commitment)
	}
	if c.Solana.ConfirmTimeout < 0 {
		return fmt.Errorf("%w: solana.confirm_timeout is negative", ErrInvalidConfig)
	}
	if c.Bench.NumKeypairs < 1 {
		return fmt.Errorf("%w: bench.num_keypairs must be at least 1, got %d", ErrInvalidConfig, c.Bench.NumKeypairs)
	}
	if c.Bench.Concurrency < 1 {
		return fmt.Errorf("%w: bench.concurrency must be at least 1, got %d", ErrInvalidConfig, c.Bench.Concurrency)
	}
	if _, err := c.TokenProgram(); err != nil {
		return err
	}
	switch c.Store.Driver {
	case "":
	case "mysql", "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for driver %s", ErrInvalidConfig, c.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	return nil
}

func (c *Config) Commitment() rpc.CommitmentType {
	return rpc.CommitmentType(c.Solana.Commitment)
}

// TokenProgram parses bench.token_program_id, defaulting to the SPL token
// program.
func (c *Config) TokenProgram() (solana.PublicKey, error) {
	if c.Bench.TokenProgramID == "" {
		return solana.TokenProgramID, nil
	}
	pk, err := solana.PublicKeyFromBase58(c.Bench.TokenProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: bench.token_program_id: %v", ErrInvalidConfig, err)
	}
	return pk, nil
}

// BenchOptions maps the bench section onto driver options.
func (c *Config) BenchOptions() (bench.Options, error) {
	program, err := c.TokenProgram()
	if err != nil {
		return bench.Options{}, err
	}
	return bench.Options{
		NumKeypairs:      c.Bench.NumKeypairs,
		MintDecimals:     c.Bench.MintDecimals,
		FundAmount:       c.Bench.FundAmount,
		TransferAmount:   c.Bench.TransferAmount,
		TokenProgram:     program,
		Concurrency:      c.Bench.Concurrency,
		ComputeUnitLimit: c.Bench.ComputeUnitLimit,
		ComputeUnitPrice: c.Bench.ComputeUnitPrice,
	}, nil
}

// LoadIdentity returns the fee payer. A solana-keygen file wins over a
// base58 secret; with neither, a throwaway key is generated, which only
// works against a cluster that airdrops or a funded local validator.
func (c *Config) LoadIdentity(log *utils.Logger) (solana.PrivateKey, error) {
	switch {
	case c.Solana.KeypairPath != "":
		pk, err := solana.PrivateKeyFromSolanaKeygenFile(c.Solana.KeypairPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read keypair %s: %v", ErrInvalidConfig, c.Solana.KeypairPath, err)
		}
		return pk, nil
	case c.Solana.PayerSecret != "":
		pk, err := solana.PrivateKeyFromBase58(c.Solana.PayerSecret)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse payer_secret as base58: %v", ErrInvalidConfig, err)
		}
		return pk, nil
	default:
		pk, err := solana.NewRandomPrivateKey()
		if err != nil {
			return nil, err
		}
		log.Warn("no identity configured, generated ephemeral fee payer %s", pk.PublicKey())
		return pk, nil
	}
}
