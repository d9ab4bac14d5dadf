package executor

import (
	"errors"
	"strings"
)

// CleanConfig returns a copy of the configuration with leading and
// trailing whitespace stripped from string-valued scalar fields.
// Nested values are passed through untouched. The submitted map itself
// is never modified.
func CleanConfig(config map[string]interface{}) (map[string]interface{}, error) {
	if len(config) == 0 {
		return nil, errors.New("empty configuration")
	}

	cleaned := make(map[string]interface{}, len(config))
	for key, value := range config {
		if s, ok := value.(string); ok {
			cleaned[key] = strings.TrimSpace(s)
			continue
		}
		cleaned[key] = value
	}
	return cleaned, nil
}
