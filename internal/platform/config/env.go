// Package config loads service configuration from the process environment.
// Service config structs declare env tags with the PHARMOVIA_ prefix and
// envDefault fallbacks; flags layered on top may then override the result.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv populates target from environment variables. target must be a
// pointer to a struct with env tags.
func ParseEnv(target any) error {
	if target == nil {
		return fmt.Errorf("parse env: target is required")
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
