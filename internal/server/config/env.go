package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// parseEnv overlays AUTHKEEPER_* environment variables on top of config.
// Fields without a matching variable keep their current values.
func parseEnv(config *Config) error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to overlay env: %w", err)
	}
	return nil
}
