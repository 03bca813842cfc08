package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvPrivateKey   = "ARB_BOT_PRIVATE_KEY"
	EnvFlashbotsKey = "FLASHBOTS_SIGNER_KEY"
	EnvRelayURL     = "FLASHBOTS_RELAY"
	EnvNetwork      = "NETWORK" // mainnet, sepolia, holesky
)

// LoadEnv loads environment variables from a .env file if one exists.
func LoadEnv() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetRequiredEnv fails when the variable is unset or empty.
func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}
