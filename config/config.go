// Package config loads the YAML configuration of pdflogo.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Common errors
var (
	ErrConfigurationError   = errors.New("configuration error")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrUnexpectedField      = errors.New("unexpected field in configuration")
)

// Defaults for the overlay placement, matching the legacy constants.
const (
	DefaultOffsetX      = 470
	DefaultOffsetY      = 790
	DefaultScale        = 0.5
	DefaultResourceName = "myImage"
)

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	if e.Err == nil {
		return ErrConfigurationError
	}
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// OffsetConfig is the overlay position in points from the lower left corner
// of the page.
type OffsetConfig struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// OverlayConfig describes the image painted on each page.
type OverlayConfig struct {
	// Image is the path of the overlay image.
	Image string `yaml:"image" json:"image"`

	// Offset positions the image; defaults to (470, 790).
	Offset *OffsetConfig `yaml:"offset" json:"offset,omitempty"`

	// Scale is applied to the image in both directions; defaults to 0.5.
	Scale float64 `yaml:"scale" json:"scale,omitempty"`

	// ResourceName is the XObject name used on pages without XObjects.
	ResourceName string `yaml:"resource-name" json:"resource_name,omitempty"`

	// WrapExistingContent brackets existing page content in q/Q.
	WrapExistingContent bool `yaml:"wrap-existing-content" json:"wrap_existing_content"`

	// MaxPixels bounds the longer side of the image; 0 keeps its size.
	MaxPixels int `yaml:"max-pixels" json:"max_pixels,omitempty"`
}

// SetDefaults sets default values for the overlay configuration.
func (c *OverlayConfig) SetDefaults() {
	if c.Offset == nil {
		c.Offset = &OffsetConfig{X: DefaultOffsetX, Y: DefaultOffsetY}
	}
	if c.Scale == 0 {
		c.Scale = DefaultScale
	}
	if c.ResourceName == "" {
		c.ResourceName = DefaultResourceName
	}
}

// Validate validates the overlay configuration. The image path is checked
// by the commands that need it, since it can also come from a flag.
func (c *OverlayConfig) Validate() error {
	if !(c.Scale > 0) {
		return NewConfigError("overlay.scale", fmt.Sprintf("must be positive, got %v", c.Scale))
	}
	if c.MaxPixels < 0 {
		return NewConfigError("overlay.max-pixels", fmt.Sprintf("cannot be negative, got %d", c.MaxPixels))
	}
	if strings.ContainsAny(c.ResourceName, " \t\r\n\f\x00/()<>[]{}%") {
		return NewConfigError("overlay.resource-name", fmt.Sprintf("%q is not a valid PDF name", c.ResourceName))
	}
	return nil
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level,omitempty"`

	// Format is the log format (text, json).
	Format string `yaml:"format" json:"format,omitempty"`

	// Output is the log output (stdout, stderr, or file path).
	Output string `yaml:"output" json:"output,omitempty"`

	// Console, when set to stdout or stderr, also writes every entry there
	// while Output names a file.
	Console string `yaml:"console" json:"console,omitempty"`

	// MaxSizeMB is the size at which a log file is rotated.
	MaxSizeMB int `yaml:"max-size-mb" json:"max_size_mb,omitempty"`

	// MaxBackups is the number of rotated log files kept.
	MaxBackups int `yaml:"max-backups" json:"max_backups,omitempty"`
}

// SetDefaults sets default values for logging configuration.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 5
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 7
	}
}

// Validate validates the logging configuration.
func (c *LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return NewConfigError("logging.level", fmt.Sprintf("unknown level %q", c.Level))
	}
	switch strings.ToLower(c.Format) {
	case "text", "json":
	default:
		return NewConfigError("logging.format", fmt.Sprintf("unknown format %q", c.Format))
	}
	switch c.Console {
	case "", "stdout", "stderr":
	default:
		return NewConfigError("logging.console", fmt.Sprintf("must be stdout or stderr, got %q", c.Console))
	}
	if c.MaxSizeMB < 0 {
		return NewConfigError("logging.max-size-mb", "cannot be negative")
	}
	if c.MaxBackups < 0 {
		return NewConfigError("logging.max-backups", "cannot be negative")
	}
	return nil
}

// JobConfig configures the batch runner.
type JobConfig struct {
	// Host identifies this machine in lock files and audit entries.
	Host string `yaml:"host" json:"host,omitempty"`

	// LockDir holds one lock file per document being processed.
	LockDir string `yaml:"lock-dir" json:"lock_dir"`

	// AuditLog is the JSON lines file recording processed documents.
	AuditLog string `yaml:"audit-log" json:"audit_log"`

	// BackupDir, when set, receives a copy of each document before it is
	// patched.
	BackupDir string `yaml:"backup-dir" json:"backup_dir,omitempty"`

	// WorkDir, when set, is where documents are patched before being moved
	// back. Otherwise they are patched in place.
	WorkDir string `yaml:"work-dir" json:"work_dir,omitempty"`
}

// SetDefaults sets default values for the job configuration.
func (c *JobConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = os.Getenv("HOSTNAME")
	}
	if c.Host == "" {
		if name, err := os.Hostname(); err == nil {
			c.Host = name
		}
	}
}

// Validate validates the job configuration.
func (c *JobConfig) Validate() error {
	if c.LockDir == "" {
		return &ConfigError{Field: "job.lock-dir", Message: "required field is missing", Err: ErrMissingRequiredField}
	}
	if c.AuditLog == "" {
		return &ConfigError{Field: "job.audit-log", Message: "required field is missing", Err: ErrMissingRequiredField}
	}
	return nil
}

// AppConfig contains the complete application configuration.
type AppConfig struct {
	// Overlay describes the image and its placement.
	Overlay *OverlayConfig `yaml:"overlay" json:"overlay,omitempty"`

	// Logging contains logging configuration.
	Logging *LoggingConfig `yaml:"logging" json:"logging,omitempty"`

	// Job configures the batch runner.
	Job *JobConfig `yaml:"job" json:"job,omitempty"`
}

// DefaultAppConfig returns a configuration with every default applied.
func DefaultAppConfig() *AppConfig {
	config := &AppConfig{}
	config.SetDefaults()
	return config
}

// SetDefaults fills in missing sections and default values.
func (c *AppConfig) SetDefaults() {
	if c.Overlay == nil {
		c.Overlay = &OverlayConfig{}
	}
	c.Overlay.SetDefaults()
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	c.Logging.SetDefaults()
	if c.Job == nil {
		c.Job = &JobConfig{}
	}
	c.Job.SetDefaults()
}

// Validate validates the overlay and logging sections. The job section is
// validated by the runner, the only command that needs it.
func (c *AppConfig) Validate() error {
	if err := c.Overlay.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// ParseAppConfig parses a YAML configuration, applies defaults and
// validates it. Unknown keys are rejected.
func ParseAppConfig(data []byte) (*AppConfig, error) {
	var config AppConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		reason := ErrConfigurationError
		if strings.Contains(err.Error(), "not found in type") {
			reason = ErrUnexpectedField
		}
		return nil, &ConfigError{Message: fmt.Sprintf("failed to parse config: %v", err), Err: reason}
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadAppConfig loads the complete application configuration from a file.
func LoadAppConfig(filename string) (*AppConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseAppConfig(data)
}
