package config

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports a missing credential or an unusable setting.
// It is the only failure allowed to abort a query.
type ConfigurationError struct {
	Key string
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// MissingKey builds the error returned when a credential is absent.
func MissingKey(key, msg string) error {
	return &ConfigurationError{Key: key, Msg: msg}
}

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsMissingCredential reports whether err is a ConfigurationError for an
// absent API key. Those leave one component unconfigured instead of stopping
// the process.
func IsMissingCredential(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce) && strings.HasSuffix(ce.Key, ".api_key")
}
