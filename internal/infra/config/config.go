package config

// Application configuration loaded once at startup
// Reads .env via godotenv, then environment variables via viper
// Per-chain credential tuples use the CHAIN_/CREATOR_/PRIVATE_KEY_/RPC_ prefixes

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"printr-launcher/internal/chains"
)

// ChainConfig is the credential tuple for one launch chain.
type ChainConfig struct {
	CAIP2      string // CAIP-2 chain identifier sent to Printr
	Creator    string // creator account address used in /print requests
	PrivateKey string // signing key handed to the submitter process
	RPC        string // RPC endpoint handed to the submitter process
}

type TelegramConfig struct {
	Token         string
	AllowedUserID int64
}

type PrintrConfig struct {
	APIURL      string
	BearerToken string
}

type AppConfig struct {
	DatabasePath        string
	PollIntervalSeconds int
	SignerDir           string // directory with per-chain signer scripts
	LogDir              string
}

type Config struct {
	Telegram TelegramConfig
	Printr   PrintrConfig
	App      AppConfig
	Chains   map[chains.Chain]ChainConfig
}

// LoadConfig reads .env (if present) and the environment. Only the Telegram
// token, operator id and Printr credentials are hard requirements; chain
// tuples may be filled in later and are validated at submission time.
func LoadConfig() (*Config, error) {
	// Missing .env is fine, the environment may already be populated.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DATABASE_PATH", "launches.db")
	v.SetDefault("POLL_INTERVAL_SECONDS", 60)
	v.SetDefault("SIGNER_DIR", "signers")
	v.SetDefault("LOG_DIR", "logs")

	cfg := &Config{
		Telegram: TelegramConfig{
			Token:         v.GetString("TELEGRAM_TOKEN"),
			AllowedUserID: v.GetInt64("ALLOWED_USER_ID"),
		},
		Printr: PrintrConfig{
			APIURL:      v.GetString("PRINTR_API_URL"),
			BearerToken: v.GetString("PRINTR_BEARER_TOKEN"),
		},
		App: AppConfig{
			DatabasePath:        v.GetString("DATABASE_PATH"),
			PollIntervalSeconds: v.GetInt("POLL_INTERVAL_SECONDS"),
			SignerDir:           v.GetString("SIGNER_DIR"),
			LogDir:              v.GetString("LOG_DIR"),
		},
		Chains: loadChainConfigs(v),
	}

	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if cfg.Telegram.AllowedUserID == 0 {
		return nil, fmt.Errorf("ALLOWED_USER_ID is required")
	}
	if cfg.Printr.APIURL == "" {
		return nil, fmt.Errorf("PRINTR_API_URL is required")
	}
	if cfg.Printr.BearerToken == "" {
		return nil, fmt.Errorf("PRINTR_BEARER_TOKEN is required")
	}

	return cfg, nil
}

func loadChainConfigs(v *viper.Viper) map[chains.Chain]ChainConfig {
	out := make(map[chains.Chain]ChainConfig, len(chains.Supported))
	for _, c := range chains.Supported {
		suffix := strings.ToUpper(string(c))
		cc := ChainConfig{
			CAIP2:      v.GetString("CHAIN_" + suffix),
			Creator:    v.GetString("CREATOR_" + suffix),
			PrivateKey: v.GetString("PRIVATE_KEY_" + suffix),
			RPC:        v.GetString("RPC_" + suffix),
		}
		if cc.CAIP2 == "" {
			cc.CAIP2 = chains.DefaultCAIP2(c)
		}
		out[c] = cc
	}
	return out
}

// ChainFor returns the credential tuple for a chain and whether the tuple is
// complete enough to submit a transaction on it.
func (c *Config) ChainFor(chain chains.Chain) (ChainConfig, bool) {
	cc, ok := c.Chains[chain]
	if !ok {
		return ChainConfig{}, false
	}
	return cc, cc.PrivateKey != "" && cc.RPC != ""
}

// MissingVars lists unset per-chain credential variables for the verify
// command. Core vars are already enforced by LoadConfig.
func (c *Config) MissingVars() []string {
	var perChain []string
	for _, chain := range chains.Supported {
		suffix := strings.ToUpper(string(chain))
		cc := c.Chains[chain]
		if cc.Creator == "" {
			perChain = append(perChain, "CREATOR_"+suffix)
		}
		if cc.PrivateKey == "" {
			perChain = append(perChain, "PRIVATE_KEY_"+suffix)
		}
		if cc.RPC == "" {
			perChain = append(perChain, "RPC_"+suffix)
		}
	}
	return perChain
}
