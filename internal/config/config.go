package config

import (
	"os"
)

const defaultAddress = ":5000"

type Config struct {
	Server ServerConfig
}

type ServerConfig struct {
	Address string
}

// LoadConfig reads the HTTP listener settings from the environment.
func LoadConfig() *Config {
	address := os.Getenv("SERVER_ADDRESS")
	if address == "" {
		address = defaultAddress
	}

	return &Config{
		Server: ServerConfig{
			Address: address,
		},
	}
}
