package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyPath(t *testing.T) {
	tests := []struct {
		input   string
		want    KeyPath
		wantErr bool
	}{
		{"gateway", KeyPath{"gateway"}, false},
		{"gateway.port", KeyPath{"gateway", "port"}, false},
		{"agents.defaults.memoryCapacity", KeyPath{"agents", "defaults", "memoryCapacity"}, false},
		{"models.aliases.GPT-4", KeyPath{"models", "aliases", "GPT-4"}, false},
		{"", nil, true},
		{"gateway..port", nil, true},
		{".gateway", nil, true},
		{"gateway.", nil, true},
		{"gateway.po rt", nil, true},
		{"keys.$secret", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKeyPath(tt.input)
			if tt.wantErr {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestKeyPathGet(t *testing.T) {
	root := map[string]any{
		"gateway": map[string]any{
			"port": 18789,
			"auth": map[string]any{"mode": "jwt"},
		},
		"simple": "value",
	}

	tests := []struct {
		name string
		path KeyPath
		want any
		ok   bool
	}{
		{"nested", KeyPath{"gateway", "port"}, 18789, true},
		{"deep", KeyPath{"gateway", "auth", "mode"}, "jwt", true},
		{"top level", KeyPath{"simple"}, "value", true},
		{"missing", KeyPath{"absent"}, nil, false},
		{"missing nested", KeyPath{"gateway", "absent"}, nil, false},
		{"through scalar", KeyPath{"simple", "sub"}, nil, false},
		{"empty path", KeyPath{}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, ok := tt.path.Get(root)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, val)
		})
	}
}

func TestKeyPathSet(t *testing.T) {
	root := map[string]any{
		"gateway": map[string]any{"port": 18789},
		"storage": "local",
	}

	KeyPath{"gateway", "port"}.Set(root, 9999)
	KeyPath{"models", "aliases", "GPT-4"}.Set(root, "gpt-4-turbo")
	KeyPath{"storage", "backend"}.Set(root, "gcs")

	val, ok := KeyPath{"gateway", "port"}.Get(root)
	assert.True(t, ok)
	assert.Equal(t, 9999, val)

	val, ok = KeyPath{"models", "aliases", "GPT-4"}.Get(root)
	assert.True(t, ok)
	assert.Equal(t, "gpt-4-turbo", val)

	// A scalar in the way is replaced by a map.
	val, ok = KeyPath{"storage", "backend"}.Get(root)
	assert.True(t, ok)
	assert.Equal(t, "gcs", val)
}

func TestKeyPathUnset(t *testing.T) {
	root := map[string]any{
		"gateway": map[string]any{
			"port": 18789,
			"bind": "lan",
		},
		"scalar": "x",
	}

	assert.True(t, KeyPath{"gateway", "port"}.Unset(root))
	_, ok := KeyPath{"gateway", "port"}.Get(root)
	assert.False(t, ok)

	val, ok := KeyPath{"gateway", "bind"}.Get(root)
	assert.True(t, ok)
	assert.Equal(t, "lan", val)

	assert.False(t, KeyPath{"gateway", "port"}.Unset(root))
	assert.False(t, KeyPath{"a", "b", "c"}.Unset(root))
	assert.False(t, KeyPath{"scalar", "x"}.Unset(root))
}
