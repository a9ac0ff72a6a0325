package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/pkg/config"
)

func TestCompileBuiltinPatterns(t *testing.T) {
	registry := config.NewMCPServerRegistry(nil)
	svc := NewService(registry, AlertMaskingConfig{})

	builtin := config.GetBuiltinConfig()
	assert.Equal(t, len(builtin.MaskingPatterns), len(svc.patterns),
		"All built-in patterns should compile (no custom patterns with empty registry)")

	for name, cp := range svc.patterns {
		assert.NotNil(t, cp.Regex, "Pattern %s should have compiled regex", name)
		assert.NotEmpty(t, cp.Replacement, "Pattern %s should have replacement", name)
	}
}

func TestCompileCustomPatterns(t *testing.T) {
	registry := config.NewMCPServerRegistry(map[string]*config.MCPServerConfig{
		"test-server": {
			Transport: config.TransportConfig{Type: config.TransportTypeStdio, Command: "echo"},
			DataMasking: &config.MaskingConfig{
				Enabled: true,
				CustomPatterns: []config.MaskingPattern{
					{
						Pattern:     `CUSTOM_SECRET_[A-Za-z0-9]+`,
						Replacement: "__MASKED_CUSTOM__",
						Description: "Custom secret pattern",
					},
				},
			},
		},
	})

	svc := NewService(registry, AlertMaskingConfig{})

	// Built-in patterns + 1 custom pattern
	builtinCount := len(config.GetBuiltinConfig().MaskingPatterns)
	assert.Equal(t, builtinCount+1, len(svc.patterns))

	// Custom pattern keyed as "custom:{serverID}:{index}"
	cp, exists := svc.patterns["custom:test-server:0"]
	require.True(t, exists, "Custom pattern should be registered")
	assert.Equal(t, "__MASKED_CUSTOM__", cp.Replacement)
}

func TestCompileCustomPatterns_InvalidRegex(t *testing.T) {
	registry := config.NewMCPServerRegistry(map[string]*config.MCPServerConfig{
		"test-server": {
			Transport: config.TransportConfig{Type: config.TransportTypeStdio, Command: "echo"},
			DataMasking: &config.MaskingConfig{
				Enabled: true,
				CustomPatterns: []config.MaskingPattern{
					{
						Pattern:     `[invalid`,
						Replacement: "__MASKED__",
					},
					{
						Pattern:     `valid_pattern`,
						Replacement: "__MASKED_VALID__",
					},
				},
			},
		},
	})

	svc := NewService(registry, AlertMaskingConfig{})

	_, invalidExists := svc.patterns["custom:test-server:0"]
	assert.False(t, invalidExists, "Invalid regex pattern should be skipped")

	_, validExists := svc.patterns["custom:test-server:1"]
	assert.True(t, validExists, "Valid pattern should be compiled")
}

func TestCompileCustomPatterns_MaskingDisabled(t *testing.T) {
	registry := config.NewMCPServerRegistry(map[string]*config.MCPServerConfig{
		"test-server": {
			Transport: config.TransportConfig{Type: config.TransportTypeStdio, Command: "echo"},
			DataMasking: &config.MaskingConfig{
				Enabled: false,
				CustomPatterns: []config.MaskingPattern{
					{Pattern: `secret`, Replacement: "__MASKED__"},
				},
			},
		},
	})

	svc := NewService(registry, AlertMaskingConfig{})

	_, exists := svc.patterns["custom:test-server:0"]
	assert.False(t, exists, "Custom patterns from disabled servers should not be compiled")
}

func TestResolvePatterns_GroupExpansion(t *testing.T) {
	registry := config.NewMCPServerRegistry(nil)
	svc := NewService(registry, AlertMaskingConfig{})

	tests := []struct {
		name           string
		groups         []string
		wantRegex      int
		hasCodeMaskers bool
	}{
		{
			name:      "basic group",
			groups:    []string{"basic"},
			wantRegex: 2, // api_key, password
		},
		{
			name:      "secrets group",
			groups:    []string{"secrets"},
			wantRegex: 4, // api_key, password, token, secret_key
		},
		{
			name:      "security group",
			groups:    []string{"security"},
			wantRegex: 7,
		},
		{
			name:           "kubernetes group",
			groups:         []string{"kubernetes"},
			wantRegex:      3, // kubernetes_secret is a code masker, not regex
			hasCodeMaskers: true,
		},
		{
			name:      "cloud group",
			groups:    []string{"cloud"},
			wantRegex: 3, // aws_access_key, api_key, token
		},
		{
			name:      "multiple groups with dedup",
			groups:    []string{"basic", "secrets"}, // basic is a subset of secrets
			wantRegex: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.MaskingConfig{
				Enabled:       true,
				PatternGroups: tt.groups,
			}
			resolved := svc.resolvePatterns(cfg, "")

			assert.Len(t, resolved.regexPatterns, tt.wantRegex)

			if tt.hasCodeMaskers {
				assert.Contains(t, resolved.codeMaskerNames, "kubernetes_secret")
			} else {
				assert.Empty(t, resolved.codeMaskerNames)
			}
		})
	}
}

func TestResolvePatterns_IndividualPatterns(t *testing.T) {
	registry := config.NewMCPServerRegistry(nil)
	svc := NewService(registry, AlertMaskingConfig{})

	cfg := &config.MaskingConfig{
		Enabled:  true,
		Patterns: []string{"api_key", "email"},
	}
	resolved := svc.resolvePatterns(cfg, "")

	assert.Len(t, resolved.regexPatterns, 2)

	names := make([]string, len(resolved.regexPatterns))
	for i, p := range resolved.regexPatterns {
		names[i] = p.Name
	}
	assert.Contains(t, names, "api_key")
	assert.Contains(t, names, "email")
}

func TestResolvePatterns_UnknownGroup(t *testing.T) {
	registry := config.NewMCPServerRegistry(nil)
	svc := NewService(registry, AlertMaskingConfig{})

	cfg := &config.MaskingConfig{
		Enabled:       true,
		PatternGroups: []string{"nonexistent_group"},
	}
	resolved := svc.resolvePatterns(cfg, "")

	assert.Empty(t, resolved.regexPatterns)
	assert.Empty(t, resolved.codeMaskerNames)
}

func TestResolvePatterns_WithCustomPatterns(t *testing.T) {
	registry := config.NewMCPServerRegistry(map[string]*config.MCPServerConfig{
		"test-server": {
			Transport: config.TransportConfig{Type: config.TransportTypeStdio, Command: "echo"},
			DataMasking: &config.MaskingConfig{
				Enabled:       true,
				PatternGroups: []string{"basic"},
				CustomPatterns: []config.MaskingPattern{
					{Pattern: `MY_SECRET_[A-Z]+`, Replacement: "__MASKED_MY_SECRET__"},
				},
			},
		},
	})

	svc := NewService(registry, AlertMaskingConfig{})

	serverCfg, err := registry.Get("test-server")
	require.NoError(t, err)
	resolved := svc.resolvePatterns(serverCfg.DataMasking, "test-server")

	// basic group (api_key, password) + the custom pattern
	assert.Len(t, resolved.regexPatterns, 3)
}

func TestResolvePatternsFromGroup(t *testing.T) {
	registry := config.NewMCPServerRegistry(nil)
	svc := NewService(registry, AlertMaskingConfig{})

	t.Run("valid group", func(t *testing.T) {
		resolved := svc.resolvePatternsFromGroup("security")
		assert.Len(t, resolved.regexPatterns, 7)
	})

	t.Run("unknown group", func(t *testing.T) {
		resolved := svc.resolvePatternsFromGroup("nonexistent")
		assert.Empty(t, resolved.regexPatterns)
		assert.Empty(t, resolved.codeMaskerNames)
	})
}

func TestResolvePatterns_Deduplication(t *testing.T) {
	registry := config.NewMCPServerRegistry(nil)
	svc := NewService(registry, AlertMaskingConfig{})

	// api_key appears in both the group and the individual patterns list
	cfg := &config.MaskingConfig{
		Enabled:       true,
		PatternGroups: []string{"basic"},
		Patterns:      []string{"api_key"},
	}
	resolved := svc.resolvePatterns(cfg, "")

	apiKeyCount := 0
	for _, p := range resolved.regexPatterns {
		if p.Name == "api_key" {
			apiKeyCount++
		}
	}
	assert.Equal(t, 1, apiKeyCount, "api_key should appear only once (deduplicated)")
}
