package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("field", "message")
	if err.Field != "field" {
		t.Errorf("Expected field 'field', got '%s'", err.Field)
	}
	if err.Message != "message" {
		t.Errorf("Expected message 'message', got '%s'", err.Message)
	}

	expected := "config error in 'field': message"
	if err.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, err.Error())
	}
	if !errors.Is(err, ErrConfigurationError) {
		t.Error("ConfigError should unwrap to ErrConfigurationError by default")
	}
}

func TestConfigErrorWithoutField(t *testing.T) {
	err := NewConfigError("", "general error")
	expected := "config error: general error"
	if err.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, err.Error())
	}
}

func TestDefaultAppConfig(t *testing.T) {
	config := DefaultAppConfig()

	wantOverlay := &OverlayConfig{
		Offset:       &OffsetConfig{X: 470, Y: 790},
		Scale:        0.5,
		ResourceName: "myImage",
	}
	if diff := cmp.Diff(wantOverlay, config.Overlay); diff != "" {
		t.Errorf("overlay defaults mismatch (-want +got):\n%s", diff)
	}

	wantLogging := &LoggingConfig{Level: "info", Format: "text", Output: "stderr", MaxSizeMB: 5, MaxBackups: 7}
	if diff := cmp.Diff(wantLogging, config.Logging); diff != "" {
		t.Errorf("logging defaults mismatch (-want +got):\n%s", diff)
	}
	if config.Job == nil {
		t.Fatal("job section should be created")
	}
}

func TestJobHostDefaults(t *testing.T) {
	t.Setenv("HOSTNAME", "pdf-worker-1")
	var job JobConfig
	job.SetDefaults()
	if job.Host != "pdf-worker-1" {
		t.Errorf("Host = %q, want $HOSTNAME", job.Host)
	}

	job = JobConfig{Host: "explicit"}
	job.SetDefaults()
	if job.Host != "explicit" {
		t.Errorf("Host = %q, want the configured value", job.Host)
	}
}

func TestParseAppConfig(t *testing.T) {
	yamlData := []byte(`
overlay:
  image: /src/data/logo/Dlink_Logo.jpg
  offset: {x: 0, y: 12.5}
  scale: 1.25
  resource-name: Logo
  wrap-existing-content: true
  max-pixels: 512
logging:
  level: debug
  format: json
  output: /var/log/pdflogo.log
  console: stdout
  max-size-mb: 10
job:
  host: worker
  lock-dir: /var/lib/pdflogo/locks
  audit-log: /var/lib/pdflogo/audit.jsonl
  backup-dir: /backup
  work-dir: /work
`)

	config, err := ParseAppConfig(yamlData)
	if err != nil {
		t.Fatalf("ParseAppConfig failed: %v", err)
	}

	want := &AppConfig{
		Overlay: &OverlayConfig{
			Image:               "/src/data/logo/Dlink_Logo.jpg",
			Offset:              &OffsetConfig{X: 0, Y: 12.5},
			Scale:               1.25,
			ResourceName:        "Logo",
			WrapExistingContent: true,
			MaxPixels:           512,
		},
		Logging: &LoggingConfig{
			Level:      "debug",
			Format:     "json",
			Output:     "/var/log/pdflogo.log",
			Console:    "stdout",
			MaxSizeMB:  10,
			MaxBackups: 7,
		},
		Job: &JobConfig{
			Host:      "worker",
			LockDir:   "/var/lib/pdflogo/locks",
			AuditLog:  "/var/lib/pdflogo/audit.jsonl",
			BackupDir: "/backup",
			WorkDir:   "/work",
		},
	}
	if diff := cmp.Diff(want, config); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if err := config.Job.Validate(); err != nil {
		t.Errorf("job Validate failed: %v", err)
	}
}

func TestParseAppConfigEmpty(t *testing.T) {
	for _, data := range []string{"", "{}"} {
		config, err := ParseAppConfig([]byte(data))
		if err != nil {
			t.Fatalf("ParseAppConfig(%q) failed: %v", data, err)
		}
		if config.Overlay.Scale != DefaultScale || config.Logging.Level != "info" {
			t.Errorf("ParseAppConfig(%q) did not apply defaults", data)
		}
	}
}

func TestParseAppConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		field   string
		wantErr error
	}{
		{"unknown section", "signing:\n  key: x\n", "", ErrUnexpectedField},
		{"unknown key", "overlay:\n  colour: red\n", "", ErrUnexpectedField},
		{"malformed", "overlay: [\n", "", ErrConfigurationError},
		{"negative scale", "overlay:\n  scale: -1\n", "overlay.scale", ErrConfigurationError},
		{"negative max pixels", "overlay:\n  max-pixels: -1\n", "overlay.max-pixels", ErrConfigurationError},
		{"bad resource name", "overlay:\n  resource-name: \"my image\"\n", "overlay.resource-name", ErrConfigurationError},
		{"bad level", "logging:\n  level: loud\n", "logging.level", ErrConfigurationError},
		{"bad format", "logging:\n  format: xml\n", "logging.format", ErrConfigurationError},
		{"bad console", "logging:\n  console: tty\n", "logging.console", ErrConfigurationError},
		{"negative backups", "logging:\n  max-backups: -2\n", "logging.max-backups", ErrConfigurationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAppConfig([]byte(tt.yaml))
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error = %v, want a *ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestJobConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		job   JobConfig
		field string
	}{
		{"valid", JobConfig{LockDir: "/locks", AuditLog: "/audit.jsonl"}, ""},
		{"no lock dir", JobConfig{AuditLog: "/audit.jsonl"}, "job.lock-dir"},
		{"no audit log", JobConfig{LockDir: "/locks"}, "job.audit-log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Errorf("error = %v, want field %s", err, tt.field)
			}
			if !errors.Is(err, ErrMissingRequiredField) {
				t.Errorf("error = %v, want ErrMissingRequiredField", err)
			}
		})
	}
}

func TestLoadAppConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "app.yaml")

	yamlData := []byte(`
overlay:
  image: logo.png
logging:
  level: warn
`)
	if err := os.WriteFile(configFile, yamlData, 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := LoadAppConfig(configFile)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if config.Overlay.Image != "logo.png" {
		t.Errorf("Expected image 'logo.png', got '%s'", config.Overlay.Image)
	}
	if config.Logging.Level != "warn" {
		t.Errorf("Expected level 'warn', got '%s'", config.Logging.Level)
	}
}

func TestLoadAppConfigFileNotFound(t *testing.T) {
	_, err := LoadAppConfig("/nonexistent/config.yaml")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}
