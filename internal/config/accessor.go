package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownKey is wrapped by GetByPath and SetByPath for paths that do
// not name a config field.
var ErrUnknownKey = errors.New("unknown config key")

// lookup resolves a dot path ("forms.restRoot") against the json field
// names of cfg. A section path ("forms") resolves to the nested struct.
func lookup(cfg *Config, path string) (reflect.Value, error) {
	v := reflect.ValueOf(cfg).Elem()
	if path == "" {
		return reflect.Value{}, fmt.Errorf("%w: empty path", ErrUnknownKey)
	}
	for _, key := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownKey, path)
		}
		next, ok := fieldByKey(v, key)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownKey, path)
		}
		v = next
	}
	return v, nil
}

func fieldByKey(v reflect.Value, key string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if fieldKey(t.Field(i)) == key {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// fieldKey is the json name of f, or "" when f is not serialized.
func fieldKey(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	return name
}

// walkLeaves calls fn for every non-struct field below v, depth first.
func walkLeaves(v reflect.Value, prefix string, fn func(path string, leaf reflect.Value)) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key := fieldKey(t.Field(i))
		if key == "" {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if f := v.Field(i); f.Kind() == reflect.Struct {
			walkLeaves(f, path, fn)
		} else {
			fn(path, f)
		}
	}
}

// GetByPath returns the value at a dot path (e.g. "forms.restRoot"), or
// the whole section for a path like "gateway".
func GetByPath(cfg *Config, path string) (any, error) {
	v, err := lookup(cfg, path)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// SetByPath parses value according to the type of the field at path and
// stores it. Sections cannot be assigned.
func SetByPath(cfg *Config, path, value string) error {
	v, err := lookup(cfg, path)
	if err != nil {
		return err
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: expected true or false, got %q", path, value)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("%s: expected an integer, got %q", path, value)
		}
		v.SetInt(n)
	case reflect.Struct:
		return fmt.Errorf("%s is a section; set one of its keys instead", path)
	default:
		return fmt.Errorf("%s: unsupported field type %s", path, v.Kind())
	}
	return nil
}

// ListPaths returns every settable path with its current value, including
// optional keys that are empty and omitted from the saved file.
func ListPaths(cfg *Config) map[string]any {
	out := make(map[string]any)
	walkLeaves(reflect.ValueOf(cfg).Elem(), "", func(path string, leaf reflect.Value) {
		out[path] = leaf.Interface()
	})
	return out
}

// SortedPaths returns the keys of ListPaths in lexical order.
func SortedPaths(cfg *Config) []string {
	paths := ListPaths(cfg)
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sanitize returns a copy of the config with the application password and
// gateway key masked.
func Sanitize(cfg *Config) *Config {
	masked := *cfg
	if masked.Forms.AppPassword != "" {
		masked.Forms.AppPassword = maskString(masked.Forms.AppPassword)
	}
	if masked.Gateway.APIKey != "" {
		masked.Gateway.APIKey = maskString(masked.Gateway.APIKey)
	}
	return &masked
}

// maskString keeps the first and last four characters.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
