package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Manager collects flat dotted keys ("read.timeout") from the environment
// and JSON files, then copies them onto a tagged struct. Later loads
// overwrite earlier ones.
type Manager struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{values: make(map[string]any)}
}

// Set stores value under key
func (m *Manager) Set(key string, value any) {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
}

// Keys reports how many keys are loaded
func (m *Manager) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// LoadFromEnv maps PREFIX_READ_TIMEOUT=5s to read.timeout. Variables
// without the prefix are ignored.
func (m *Manager) LoadFromEnv(prefix string) {
	for _, kv := range os.Environ() {
		name, value, _ := strings.Cut(kv, "=")
		rest, ok := strings.CutPrefix(name, prefix+"_")
		if !ok || rest == "" {
			continue
		}
		m.Set(strings.ReplaceAll(strings.ToLower(rest), "_", "."), value)
	}
}

// LoadFromJSON reads a JSON object from path; nested objects flatten into
// dotted keys.
func (m *Manager) LoadFromJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	m.flatten("", tree)
	return nil
}

func (m *Manager) flatten(prefix string, tree map[string]any) {
	for k, v := range tree {
		if prefix != "" {
			k = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			m.flatten(k, sub)
			continue
		}
		m.Set(k, v)
	}
}

// Unmarshal assigns loaded values to the exported fields of *target. A
// field's key is its `config` tag, else its lowercased name; "-" skips it.
func (m *Manager) Unmarshal(prefix string, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: Unmarshal needs a struct pointer, got %T", target)
	}
	rv = rv.Elem()

	m.mu.RLock()
	defer m.mu.RUnlock()

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("config")
		switch key {
		case "-":
			continue
		case "":
			key = strings.ToLower(f.Name)
		}
		if prefix != "" {
			key = prefix + "." + key
		}

		raw, ok := m.values[key]
		if !ok {
			continue
		}
		if err := assign(rv.Field(i), raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
		}
	}
	return nil
}

// assign converts raw (a JSON value or an environment string) to the
// field's type
func assign(dst reflect.Value, raw any) error {
	if dst.Type() == durationType {
		d, err := toDuration(raw)
		if err == nil {
			dst.SetInt(int64(d))
		}
		return err
	}

	switch dst.Kind() {
	case reflect.String:
		dst.SetString(fmt.Sprint(raw))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt(raw)
		if err == nil {
			dst.SetInt(n)
		}
		return err
	case reflect.Bool:
		switch v := raw.(type) {
		case bool:
			dst.SetBool(v)
			return nil
		case string:
			b, err := strconv.ParseBool(v)
			if err == nil {
				dst.SetBool(b)
			}
			return err
		}
	}
	return fmt.Errorf("cannot store %T in %s", raw, dst.Type())
}

func toInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%v is not a whole number", v)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	}
	return 0, fmt.Errorf("cannot use %T as integer", raw)
}

// toDuration accepts Go duration strings and plain numbers of seconds
func toDuration(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case string:
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
		return time.ParseDuration(v)
	}
	return 0, fmt.Errorf("cannot use %T as duration", raw)
}
