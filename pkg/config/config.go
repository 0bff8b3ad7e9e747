// Package config reads the JSON files vipdiag components are
// configured from. Durations in those files accept Go duration strings
// ("250ms", "1m30s") as well as bare nanosecond counts.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var errBadDuration = errors.New("invalid duration")

// Validator is implemented by configs that enforce their own
// invariants after decoding.
type Validator interface {
	Validate() error
}

// Load decodes the JSON file at path into dst. When dst implements
// Validator, the decoded config is validated before Load returns.
func Load(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	if v, ok := dst.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
	}

	return nil
}
