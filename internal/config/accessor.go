package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// tree converts the config to its generic JSON form so dot paths can be
// walked without reflection.
func tree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// walk descends the JSON tree along keys, returning the map holding the
// final key. The config schema is flat sections of scalars, so every
// intermediate node must be an object.
func walk(m map[string]any, keys []string, path string) (map[string]any, error) {
	for _, k := range keys {
		child, ok := m[k]
		if !ok {
			return nil, fmt.Errorf("unknown config key %q", path)
		}
		m, ok = child.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%q is a value, not a section", k)
		}
	}
	return m, nil
}

// GetByPath reads a config value by dot path, e.g. "general.timezone".
// Numeric values come back as float64.
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := tree(cfg)
	if err != nil {
		return nil, err
	}
	keys := strings.Split(path, ".")
	parent, err := walk(m, keys[:len(keys)-1], path)
	if err != nil {
		return nil, err
	}
	v, ok := parent[keys[len(keys)-1]]
	if !ok {
		return nil, fmt.Errorf("unknown config key %q", path)
	}
	return v, nil
}

// SetByPath writes a config value by dot path. The schema is fixed, so the
// key must already exist; string values are coerced to bool/number where
// they parse as one.
func SetByPath(cfg *Config, path string, value any) error {
	m, err := tree(cfg)
	if err != nil {
		return err
	}
	keys := strings.Split(path, ".")
	parent, err := walk(m, keys[:len(keys)-1], path)
	if err != nil {
		return err
	}
	last := keys[len(keys)-1]
	if _, ok := parent[last]; !ok {
		return fmt.Errorf("unknown config key %q", path)
	}
	parent[last] = coerce(value)

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a copy of the config with credentials masked, for
// printing via `config list`.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	for _, secret := range []*string{
		&out.Telegram.Token,
		&out.Upbit.AccessKey,
		&out.Upbit.SecretKey,
	} {
		*secret = mask(*secret)
	}
	return &out
}

// mask keeps just enough of a credential to recognize which one it is.
func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
