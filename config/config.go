package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/log"
	"github.com/joho/godotenv"
	"gopkg.in/go-playground/validator.v9"
)

// Environment variables that override the configuration file
const (
	EnvMainPrivateKey = "TXVERIFIER_MAIN_PRIVATE_KEY"
	EnvL1URL          = "TXVERIFIER_L1_URL"
	EnvL2URL          = "TXVERIFIER_L2_URL"
	EnvFastMode       = "TXVERIFIER_FAST_MODE"
	// EnvEtherscanAPIKey keeps the api key of the gas tracker out of the
	// configuration file
	EnvEtherscanAPIKey = "TXVERIFIER_ETHERSCAN_API_KEY"
)

// Duration is a wrapper type that parses time duration from text.
type Duration struct {
	time.Duration `validate:"required"`
}

// UnmarshalText unmarshalls time duration from text.
func (d *Duration) UnmarshalText(data []byte) error {
	duration, err := time.ParseDuration(string(data))
	if err != nil {
		return tracerr.Wrap(err)
	}
	d.Duration = duration
	return nil
}

// LogConf specifies the log configuration parameters
type LogConf struct {
	Level string `validate:"omitempty,oneof=debug info warn error"`
	// ErrorsPath is an optional file where errors are also written
	ErrorsPath string
	// Encoding is "console" or "json"
	Encoding string `validate:"omitempty,oneof=console json"`
}

// Conf returns the configuration of the logger
func (c LogConf) Conf() log.Conf {
	return log.Conf{Level: c.Level, ErrorsPath: c.ErrorsPath, Encoding: c.Encoding}
}

// Layer is the connection to the node of a layer
type Layer struct {
	// URL is the URL of the JSON-RPC server of the node
	URL string `validate:"required,url"`
	// CallGasLimit is the gas limit of the calls that estimate nothing
	CallGasLimit uint64 `validate:"required"`
	// GasPriceDiv is the divisor of the extra gas price added to the
	// suggested one
	GasPriceDiv uint64 `validate:"required"`
}

// Token is a token whose transfers are checked
type Token struct {
	Symbol string `validate:"required"`
	// L1 is the address of the token on L1, zero if it is not bridged
	L1 ethCommon.Address
	L2 ethCommon.Address `validate:"required"`
}

// Bridged returns the addresses of the token on both layers
func (t Token) Bridged() common.BridgedToken {
	return common.BridgedToken{L1: t.L1, L2: t.L2}
}

// Config is the configuration of the transaction verifier
type Config struct {
	Log    LogConf
	L1     Layer `validate:"required"`
	L2     Layer `validate:"required"`
	Bridge struct {
		// Mailbox is the address of the L1 contract that receives
		// deposits and finalizes withdrawals
		Mailbox ethCommon.Address `validate:"required"`
	} `validate:"required"`
	Account struct {
		// MainPrivateKey is the hex encoded key of the funded account
		// that pays for the scenarios.  It can be set with the
		// TXVERIFIER_MAIN_PRIVATE_KEY environment variable.
		MainPrivateKey string `validate:"required"`
		// Mnemonic derives the fresh accounts.  A random one is used
		// when empty.
		Mnemonic string
		// FundAmount is the amount in wei transferred from the main
		// account to every fresh account that needs funds
		FundAmount int64 `validate:"required,gt=0"`
	} `validate:"required"`
	Receipt struct {
		// Timeout bounds the wait for a receipt
		Timeout Duration `validate:"required"`
		// PollInterval is the interval between receipt requests
		PollInterval Duration `validate:"required"`
	} `validate:"required"`
	Deposit struct {
		GasPerPubdataByte int64 `validate:"required,gt=0"`
		L2GasLimit        int64 `validate:"required,gt=0"`
		// Amount is the amount in wei deposited and withdrawn by the
		// bridge scenarios
		Amount int64 `validate:"required,gt=0"`
	} `validate:"required"`
	Withdrawal struct {
		// FinalizePollInterval is the interval between checks of the
		// execution of the batch of a withdrawal
		FinalizePollInterval Duration `validate:"required"`
		// FinalizeTimeout bounds the wait for a withdrawal to be
		// finalizable
		FinalizeTimeout Duration `validate:"required"`
	} `validate:"required"`
	Oracle struct {
		MaxConcurrentReads int `validate:"gte=0"`
	}
	Tokens []Token `validate:"dive"`
	Report struct {
		// Driver is "sqlite3" or "postgres".  Results are not stored
		// when empty.
		Driver string `validate:"omitempty,oneof=sqlite3 postgres"`
		DSN    string
	}
	Metrics struct {
		// Address serves the prometheus metrics when not empty
		Address string
	}
	Etherscan struct {
		// URL of the gas tracker used for the L1 gas price of deposits.
		// The gas price suggested by the L1 node is used when empty.
		URL    string `validate:"omitempty,url"`
		APIKey string
	}
	// FastMode skips the scenarios that wait for a withdrawal to be
	// finalizable on L1
	FastMode bool
}

// MainKey returns the private key of the main account
func (c *Config) MainKey() (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.Account.MainPrivateKey, "0x"))
	if err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("invalid main private key: %w", err))
	}
	return key, nil
}

// loadEnv loads a .env file from the working directory, if there is one
func loadEnv() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return nil
	}
	return tracerr.Wrap(godotenv.Load())
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvMainPrivateKey); v != "" {
		c.Account.MainPrivateKey = v
	}
	if v := os.Getenv(EnvL1URL); v != "" {
		c.L1.URL = v
	}
	if v := os.Getenv(EnvL2URL); v != "" {
		c.L2.URL = v
	}
	if v := os.Getenv(EnvEtherscanAPIKey); v != "" {
		c.Etherscan.APIKey = v
	}
	if v := os.Getenv(EnvFastMode); v != "" {
		c.FastMode = v == "true" || v == "1"
	}
}

// Load loads the configuration from the TOML file at path on top of
// DefaultValues, then applies the environment.  An empty path only uses the
// defaults and the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(DefaultValues, &cfg); err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("error loading default configuration: %w", err))
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, tracerr.Wrap(fmt.Errorf("error loading configuration file: %w", err))
		}
	}
	if err := loadEnv(); err != nil {
		return nil, tracerr.Wrap(err)
	}
	cfg.applyEnv()
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("error validating configuration file: %w", err))
	}
	log.Debugw("Loaded configuration", "l1", cfg.L1.URL, "l2", cfg.L2.URL,
		"mailbox", cfg.Bridge.Mailbox.Hex(), "tokens", len(cfg.Tokens), "fastMode", cfg.FastMode)
	return &cfg, nil
}
