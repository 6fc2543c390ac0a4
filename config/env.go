package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCURL          = "RPC_URL"
	EnvPrivateKey      = "PRIVATE_KEY"
	EnvExecutorAddress = "EXECUTOR_CONTRACT_ADDRESS"
	EnvRelayAuthKey    = "RELAY_AUTH_KEY"
	EnvNetwork         = "NETWORK" // mainnet, goerli
)

// LoadEnv loads environment variables from the given .env files, or from
// ./.env when none are named. A missing default .env file is ignored.
func LoadEnv(filenames ...string) error {
	err := godotenv.Load(filenames...)
	if err != nil && len(filenames) == 0 && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetRequiredEnv(key string) (string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}

// LoadSecureConfig reads the signing keys. The relay auth key falls back to
// the transaction key.
func LoadSecureConfig() (*SecureConfig, error) {
	privateKey, err := GetRequiredEnv(EnvPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("private key not found: %w", err)
	}

	return &SecureConfig{
		PrivateKey:   privateKey,
		RelayAuthKey: GetEnvWithDefault(EnvRelayAuthKey, privateKey),
	}, nil
}

// Load reads the config file, overlays the environment and the network
// preset, and validates the result. A non-empty network overrides both file
// and environment.
func Load(cfgFile, network string) (*Config, error) {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if network != "" {
		cfg.Network = network
	}
	if err := cfg.ApplyNetwork(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}
