package config

import (
	"regexp"
	"strings"
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// KeyPath addresses a value inside the raw YAML tree, e.g.
// "models.aliases.GPT-4".
type KeyPath []string

// ParseKeyPath splits a dotted path. Segments are YAML mapping keys made of
// letters, digits, '_' and '-'.
func ParseKeyPath(raw string) (KeyPath, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config path contains empty segment: " + raw}
		}
		if !segmentPattern.MatchString(p) {
			return nil, &ConfigError{Message: "invalid config path segment: " + p}
		}
	}
	return KeyPath(parts), nil
}

func (k KeyPath) String() string { return strings.Join(k, ".") }

// parent walks to the map holding the last segment. With create set,
// missing or non-map intermediates are replaced by empty maps.
func (k KeyPath) parent(root map[string]any, create bool) (map[string]any, bool) {
	current := root
	for _, key := range k[:len(k)-1] {
		m, ok := current[key].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			m = map[string]any{}
			current[key] = m
		}
		current = m
	}
	return current, true
}

// Get returns the value at k.
func (k KeyPath) Get(root map[string]any) (any, bool) {
	if len(k) == 0 {
		return nil, false
	}
	m, ok := k.parent(root, false)
	if !ok {
		return nil, false
	}
	v, ok := m[k[len(k)-1]]
	return v, ok
}

// Set stores value at k, creating intermediate maps.
func (k KeyPath) Set(root map[string]any, value any) {
	if len(k) == 0 {
		return
	}
	m, _ := k.parent(root, true)
	m[k[len(k)-1]] = value
}

// Unset removes the value at k and reports whether it existed.
func (k KeyPath) Unset(root map[string]any) bool {
	if len(k) == 0 {
		return false
	}
	m, ok := k.parent(root, false)
	if !ok {
		return false
	}
	last := k[len(k)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	return true
}
