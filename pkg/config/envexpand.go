package config

import (
	"os"
	"regexp"
)

// envRefPattern matches ${VAR} and ${VAR:-default} references. Variable names
// follow shell conventions: letters, digits and underscore, not starting with
// a digit.
var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv expands ${VAR} and ${VAR:-default} references in YAML content.
//
// Only the braced form is recognized: a bare $VAR passes through untouched,
// which keeps regex patterns ("^secret.*$") and shell snippets in config
// values intact. A set-but-empty variable counts as set, matching shell
// ":-" only loosely: we substitute the default when the variable is unset
// OR empty, since an empty API key or URL is never what the operator meant.
//
// Examples:
//   - ${GOOGLE_API_KEY}          → value of GOOGLE_API_KEY, or "" if unset
//   - ${DB_PORT:-5432}           → value of DB_PORT, or "5432"
//   - pattern: "user_\d+\.log$"  → untouched
func ExpandEnv(data []byte) []byte {
	return envRefPattern.ReplaceAllFunc(data, func(ref []byte) []byte {
		groups := envRefPattern.FindSubmatch(ref)
		name := string(groups[1])
		if v := os.Getenv(name); v != "" {
			return []byte(v)
		}
		if len(groups[2]) > 0 {
			return groups[3]
		}
		return nil
	})
}
