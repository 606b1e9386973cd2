// Package config loads tracefire settings from flags and an optional JSON or
// YAML config file. Flags always win over file values.
package config

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var keyReplacer = strings.NewReplacer("_", "", "-", "")

// normalizeKey folds trace_file, trace-file and traceFile into one key.
func normalizeKey(key string) string {
	return keyReplacer.Replace(strings.ToLower(strings.TrimSpace(key)))
}

// section is one level of a config file. Setters assign only when one of
// their keys is present and keep the first conversion error for err.
type section struct {
	path   string
	values map[string]any
	failed error
}

func newSection(path string, raw any) (*section, error) {
	values := map[string]any{}
	switch v := raw.(type) {
	case nil:
	case map[string]any:
		for key, val := range v {
			values[normalizeKey(key)] = val
		}
	case map[any]any:
		for key, val := range v {
			str, _ := asString(key)
			values[normalizeKey(str)] = val
		}
	default:
		return nil, fmt.Errorf("%s: expected map, got %T", path, raw)
	}
	return &section{path: path, values: values}, nil
}

func (s *section) lookup(keys ...string) (any, string, bool) {
	for _, key := range keys {
		if val, ok := s.values[normalizeKey(key)]; ok {
			return val, key, true
		}
	}
	return nil, "", false
}

func (s *section) fail(key string, err error) {
	if s.failed != nil {
		return
	}
	if s.path != "" {
		key = s.path + "." + key
	}
	s.failed = fmt.Errorf("%s: %w", key, err)
}

func (s *section) err() error {
	return s.failed
}

// keep adopts the first error of a child section.
func (s *section) keep(child *section) {
	if s.failed == nil {
		s.failed = child.failed
	}
}

func (s *section) child(key string) (*section, bool) {
	raw, _, ok := s.lookup(key)
	if !ok {
		return nil, false
	}
	path := key
	if s.path != "" {
		path = s.path + "." + key
	}
	child, err := newSection(path, raw)
	if err != nil {
		if s.failed == nil {
			s.failed = err
		}
		return nil, false
	}
	return child, true
}

// text assigns the value verbatim; str trims it.
func (s *section) text(dst *string, keys ...string) {
	raw, key, ok := s.lookup(keys...)
	if !ok {
		return
	}
	val, err := asString(raw)
	if err != nil {
		s.fail(key, err)
		return
	}
	*dst = val
}

func (s *section) str(dst *string, keys ...string) {
	val := *dst
	s.text(&val, keys...)
	*dst = strings.TrimSpace(val)
}

func (s *section) integer(dst *int, keys ...string) {
	raw, key, ok := s.lookup(keys...)
	if !ok {
		return
	}
	val, err := asInt(raw)
	if err != nil {
		s.fail(key, err)
		return
	}
	*dst = val
}

func (s *section) float(dst *float64, keys ...string) {
	raw, key, ok := s.lookup(keys...)
	if !ok {
		return
	}
	val, err := asFloat64(raw)
	if err != nil {
		s.fail(key, err)
		return
	}
	*dst = val
}

func (s *section) boolean(dst *bool, keys ...string) {
	raw, key, ok := s.lookup(keys...)
	if !ok {
		return
	}
	val, err := asBool(raw)
	if err != nil {
		s.fail(key, err)
		return
	}
	*dst = val
}

func (s *section) duration(dst *time.Duration, keys ...string) {
	raw, key, ok := s.lookup(keys...)
	if !ok {
		return
	}
	val, err := asDuration(raw)
	if err != nil {
		s.fail(key, err)
		return
	}
	*dst = val
}

func (s *section) list(dst *[]string, keys ...string) {
	raw, key, ok := s.lookup(keys...)
	if !ok {
		return
	}
	val, err := asStringSlice(raw)
	if err != nil {
		s.fail(key, err)
		return
	}
	*dst = val
}

// headers merges a header map into dst under canonical keys.
func (s *section) headers(dst map[string]string, keys ...string) {
	raw, key, ok := s.lookup(keys...)
	if !ok || raw == nil {
		return
	}
	switch v := raw.(type) {
	case map[string]string:
		for name, val := range v {
			s.header(dst, key, name, val)
		}
	case map[string]any:
		for name, val := range v {
			s.header(dst, key, name, val)
		}
	case map[any]any:
		for name, val := range v {
			str, _ := asString(name)
			s.header(dst, key, str, val)
		}
	default:
		s.fail(key, fmt.Errorf("unsupported headers type %T", raw))
	}
}

func (s *section) header(dst map[string]string, key, name string, val any) {
	name = strings.TrimSpace(name)
	if name == "" {
		s.fail(key, fmt.Errorf("header key cannot be empty"))
		return
	}
	str, err := asString(val)
	if err != nil {
		s.fail(key, err)
		return
	}
	dst[http.CanonicalHeaderKey(name)] = str
}

func asString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case map[string]any, map[any]any, []any:
		return "", fmt.Errorf("expected a scalar, got %T", value)
	default:
		return fmt.Sprint(v), nil
	}
}

// number reports the value of any integer or float kind.
func number(value any) (float64, bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func asInt(value any) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return strconv.Atoi(v)
	}
	if f, ok := number(value); ok {
		return int(f), nil
	}
	return 0, fmt.Errorf("unsupported numeric type %T", value)
}

func asFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return strconv.ParseFloat(v, 64)
	}
	if f, ok := number(value); ok {
		return f, nil
	}
	return 0, fmt.Errorf("unsupported float type %T", value)
}

func asBool(value any) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return false, nil
		}
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("unsupported boolean type %T", value)
	}
}

// asDuration accepts Go duration strings; bare numbers are seconds.
func asDuration(value any) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		return time.ParseDuration(v)
	}
	if f, ok := number(value); ok {
		return time.Duration(f * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("unsupported duration type %T", value)
}

func asStringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			str, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = str
		}
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("unsupported string slice type %T", value)
	}
}
