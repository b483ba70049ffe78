package config

import (
	"fmt"
	"strings"
)

// ConfigError reports missing credentials or an invalid option. It is fatal
// and raised before any network call.
type ConfigError struct {
	Missing []string
	Reason  string
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
	}
	return "invalid configuration: " + e.Reason
}
