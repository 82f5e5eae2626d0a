package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Default()
	if *cfg != *want {
		t.Errorf("Parse(nil) = %+v, want %+v", *cfg, *want)
	}
	if cfg.ReadTimeout != 60*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.ReadTimeout)
	}

	lim := cfg.Limits()
	if lim.RequestLine != 8000 || lim.HeaderLine != 8000 || lim.Headers != 100 {
		t.Errorf("Limits = %+v", lim)
	}
}

func TestParseFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"-port", "9000",
		"-read-timeout", "5s",
		"-max-headers", "10",
		"-env", "production",
		"-file-root", "/srv",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 9000 || cfg.ReadTimeout != 5*time.Second || cfg.MaxHeaders != 10 {
		t.Errorf("got %+v", *cfg)
	}
	if cfg.Env != "production" || cfg.FileRoot != "/srv" {
		t.Errorf("got %+v", *cfg)
	}
}

func TestParseEnvironment(t *testing.T) {
	t.Setenv("H1_PORT", "7000")
	t.Setenv("H1_WRITE_TIMEOUT", "2s")
	t.Setenv("H1_MAX_BODY_SIZE", "1024")
	t.Setenv("H1_LOG_LEVEL", "debug")
	t.Setenv("H1X_PORT", "1")

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 7000 {
		t.Errorf("Port = %d, want 7000", cfg.Port)
	}
	if cfg.WriteTimeout != 2*time.Second {
		t.Errorf("WriteTimeout = %v", cfg.WriteTimeout)
	}
	if cfg.MaxBodySize != 1024 {
		t.Errorf("MaxBodySize = %d", cfg.MaxBodySize)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}

	// Flags beat the environment
	cfg, err = Parse([]string{"-port", "7001"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 7001 {
		t.Errorf("Port = %d, want 7001", cfg.Port)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h1.json")
	body := `{
		"port": 8181,
		"read": {"timeout": 15},
		"write": {"timeout": "250ms"},
		"max.headers": 20,
		"metrics": {"port": 0}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("H1_MAX_HEADERS", "30")

	cfg, err := Parse([]string{"-config", path})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 8181 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout != 250*time.Millisecond {
		t.Errorf("WriteTimeout = %v", cfg.WriteTimeout)
	}
	if cfg.MaxHeaders != 30 {
		t.Errorf("MaxHeaders = %d, environment should beat the file", cfg.MaxHeaders)
	}
	if cfg.MetricsPort != 0 {
		t.Errorf("MetricsPort = %d", cfg.MetricsPort)
	}
	if cfg.File != path {
		t.Errorf("File = %q", cfg.File)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
		want error
	}{
		{name: "port range", args: []string{"-port", "70000"}, want: ErrInvalid},
		{name: "zero headers", args: []string{"-max-headers", "0"}, want: ErrInvalid},
		{name: "bad env int", env: map[string]string{"H1_PORT": "eighty"}, want: ErrInvalid},
		{name: "bad env duration", env: map[string]string{"H1_READ_TIMEOUT": "soon"}, want: ErrInvalid},
		{name: "unknown flag", args: []string{"-nope"}},
		{name: "missing file", args: []string{"-config", "/nonexistent/h1.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Parse(tt.args)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestManagerConversions(t *testing.T) {
	type target struct {
		Workers int
		Wait    time.Duration
		Grace   time.Duration
		Name    string
		Verbose bool
	}

	tests := []struct {
		name    string
		values  map[string]any
		want    target
		wantErr bool
	}{
		{name: "env strings", values: map[string]any{"workers": " 4", "wait": "1500ms", "name": "h1", "verbose": "true"},
			want: target{Workers: 4, Wait: 1500 * time.Millisecond, Name: "h1", Verbose: true}},
		{name: "json numbers", values: map[string]any{"workers": 2.0, "grace": 3.0, "name": 7.0},
			want: target{Workers: 2, Grace: 3 * time.Second, Name: "7"}},
		{name: "seconds string", values: map[string]any{"wait": "5"}, want: target{Wait: 5 * time.Second}},
		{name: "fractional int", values: map[string]any{"workers": 2.5}, wantErr: true},
		{name: "bool from number", values: map[string]any{"verbose": 1.0}, wantErr: true},
		{name: "list as duration", values: map[string]any{"wait": []any{"1s"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager()
			for k, v := range tt.values {
				m.Set(k, v)
			}
			if m.Keys() != len(tt.values) {
				t.Fatalf("Keys = %d", m.Keys())
			}

			var got target
			err := m.Unmarshal("", &got)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("err = %v, want ErrInvalid", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestManagerUnmarshal(t *testing.T) {
	type target struct {
		Name    string        `config:"svc.name"`
		Debug   bool          `config:"svc.debug"`
		Timeout time.Duration `config:"svc.timeout"`
		Count   int
		Skipped string `config:"-"`
	}

	m := NewManager()
	m.flatten("", map[string]any{
		"svc": map[string]any{
			"name":    "edge",
			"debug":   true,
			"timeout": "3s",
		},
		"count": 7.0,
		"-":     "ignored",
	})

	var got target
	if err := m.Unmarshal("", &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := target{Name: "edge", Debug: true, Timeout: 3 * time.Second, Count: 7}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if err := m.Unmarshal("", got); err == nil {
		t.Error("expected error for non-pointer target")
	}
}
