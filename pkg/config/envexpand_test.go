package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("TARSY_TEST_HOST", "db.example.com")
	t.Setenv("TARSY_TEST_EMPTY", "")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "set variable",
			input:    "host: ${TARSY_TEST_HOST}",
			expected: "host: db.example.com",
		},
		{
			name:     "unset variable expands to empty",
			input:    "key: ${TARSY_TEST_UNSET}",
			expected: "key: ",
		},
		{
			name:     "unset variable with default",
			input:    "port: ${TARSY_TEST_UNSET:-5432}",
			expected: "port: 5432",
		},
		{
			name:     "empty variable falls back to default",
			input:    "port: ${TARSY_TEST_EMPTY:-5432}",
			expected: "port: 5432",
		},
		{
			name:     "set variable ignores default",
			input:    "host: ${TARSY_TEST_HOST:-localhost}",
			expected: "host: db.example.com",
		},
		{
			name:     "bare dollar passes through",
			input:    `pattern: "^secret.*$"`,
			expected: `pattern: "^secret.*$"`,
		},
		{
			name:     "unbraced reference passes through",
			input:    "path: $HOME/bin",
			expected: "path: $HOME/bin",
		},
		{
			name:     "multiple references on one line",
			input:    "dsn: ${TARSY_TEST_HOST}:${TARSY_TEST_UNSET:-5432}",
			expected: "dsn: db.example.com:5432",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(ExpandEnv([]byte(tt.input))))
		})
	}
}
