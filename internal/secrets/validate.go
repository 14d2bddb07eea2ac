package secrets

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// ValidationError lists required environment variables that are unset or blank.
type ValidationError struct {
	Missing []string
	Empty   []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Empty) > 0 {
		parts = append(parts, fmt.Sprintf("empty values for required environment variables: %s", strings.Join(e.Empty, ", ")))
	}
	return strings.Join(parts, "; ")
}

// RequireEnv checks that every named variable is set to a non-blank value.
func RequireEnv(names ...string) error {
	return validate(names, os.LookupEnv)
}

func validate(names []string, lookup func(string) (string, bool)) error {
	var missing, empty []string
	for _, name := range names {
		v, ok := lookup(name)
		switch {
		case !ok:
			missing = append(missing, name)
		case strings.TrimSpace(v) == "":
			empty = append(empty, name)
		}
	}
	if len(missing) == 0 && len(empty) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(empty)
	return &ValidationError{Missing: missing, Empty: empty}
}
