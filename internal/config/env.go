package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds daemon settings supplied through environment variables.
// Unset values fall back to the instance path defaults.
type Env struct {
	Instance     string `env:"REFUNDA_INSTANCE" envDefault:"default"`
	HTTPAddr     string `env:"REFUNDA_HTTP_ADDR" envDefault:"127.0.0.1:8790"`
	DataPath     string `env:"REFUNDA_DATA_PATH"`
	ArtifactsDir string `env:"REFUNDA_ARTIFACTS_DIR"`
}

// ParseEnv loads daemon configuration from environment variables and
// resolves path defaults against the instance directory layout.
func ParseEnv() (Env, error) {
	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("config: parse env: %w", err)
	}

	paths := GetInstancePaths(cfg.Instance)
	if cfg.DataPath == "" {
		cfg.DataPath = paths.Eligibility
	} else {
		cfg.DataPath = ExpandPath(cfg.DataPath)
	}
	if cfg.ArtifactsDir == "" {
		cfg.ArtifactsDir = paths.Artifacts
	} else {
		cfg.ArtifactsDir = ExpandPath(cfg.ArtifactsDir)
	}

	return cfg, nil
}
