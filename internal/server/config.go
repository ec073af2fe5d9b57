package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the lookup service's YAML configuration.
type Config struct {
	BindAddress       string        `yaml:"bind_address"`
	KeysDataPath      string        `yaml:"keys_data_path"`
	ModelVersionFile  string        `yaml:"model_version_file"`
	LookupPackagePath string        `yaml:"lookup_package_path"`
	CompressResponse  bool          `yaml:"compress_response"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// LoadConfig reads and checks the service configuration. Every path is
// required; the service refuses to start on a config it cannot fully serve.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read server config: %w", err)
	}
	cfg := &Config{
		BindAddress:  ":5000",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse server config %s: %w", path, err)
	}
	if cfg.KeysDataPath == "" {
		return nil, fmt.Errorf("server config %s: keys_data_path is required", path)
	}
	if cfg.ModelVersionFile == "" {
		return nil, fmt.Errorf("server config %s: model_version_file is required", path)
	}
	if cfg.LookupPackagePath == "" {
		return nil, fmt.Errorf("server config %s: lookup_package_path is required", path)
	}
	return cfg, nil
}
