package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load populates Config from the environment, applies tag defaults, and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := applyEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envTag is the parsed loading directive of one field.
type envTag struct {
	name     string
	alt      string
	def      string
	required bool
}

// applyEnv walks a config struct, recursing into nested groups, and
// assigns every tagged field from its environment variable, its alternate
// name, or its default.
func applyEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		sf := t.Field(i)
		if sf.Type.Kind() == reflect.Struct && sf.Type != reflect.TypeOf(time.Time{}) {
			if err := applyEnv(field); err != nil {
				return err
			}
			continue
		}

		tag := envTag{
			name:     sf.Tag.Get("env"),
			alt:      sf.Tag.Get("envAlt"),
			def:      sf.Tag.Get("default"),
			required: sf.Tag.Get("required") == "true",
		}
		if tag.name == "" {
			continue
		}

		raw := lookupEnv(tag.name, tag.alt)
		if raw == "" {
			if tag.required {
				return fmt.Errorf("required environment variable %s is not set", tag.name)
			}
			raw = tag.def
		}
		if raw == "" {
			continue
		}

		if err := assign(field, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", tag.name, raw, err)
		}
	}

	return nil
}

// lookupEnv reads the primary variable, falling back to the alternate
// name. Empty values count as unset.
func lookupEnv(name, alt string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	if alt != "" {
		return os.Getenv(alt)
	}
	return ""
}

// assign converts raw into the field's type.
func assign(field reflect.Value, raw string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
		return nil

	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)
		return nil

	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
		return nil

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		field.Set(reflect.ValueOf(splitList(raw)))
		return nil

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
}

// splitList splits a comma-separated value, trimming whitespace and
// dropping empty entries.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks every group and reports all problems in one error so a
// bad deployment surfaces everything at once.
func (c *Config) Validate() error {
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Database.URL == "" {
		bad("DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		bad("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.Database.MaxConns, c.Database.MinConns)
	}
	if c.Database.MaxConns <= 0 {
		bad("DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		bad("DB_MIN_CONNS must be non-negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		bad("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		bad("SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		bad("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Upload.MaxFileSize <= 0 {
		bad("UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Upload.MaxConcurrent <= 0 {
		bad("UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.Upload.BatchSize <= 0 {
		bad("UPLOAD_BATCH_SIZE must be positive")
	}
	if c.Upload.MaxWaitTime <= 0 {
		bad("UPLOAD_MAX_WAIT_TIME must be positive")
	}
	if c.Upload.Timeout <= 0 {
		bad("UPLOAD_TIMEOUT must be positive")
	}

	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		bad("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	if c.RequestLog.BufferSize <= 0 {
		bad("REQUEST_LOG_BUFFER_SIZE must be positive")
	}
	if c.RequestLog.SweepInterval <= 0 {
		bad("REQUEST_LOG_SWEEP_INTERVAL must be positive")
	}
	if c.RequestLog.Retention <= 0 {
		bad("REQUEST_LOG_RETENTION must be positive")
	}

	// The API key is optional: the assistant simply stays disabled
	// without one.
	if c.Assistant.Timeout <= 0 {
		bad("ASSISTANT_TIMEOUT must be positive")
	}
	if c.Assistant.MaxSampleRows < 0 {
		bad("ASSISTANT_MAX_SAMPLE_ROWS must be non-negative")
	}
	if c.Assistant.APIKey != "" && c.Assistant.Model == "" {
		bad("ASSISTANT_MODEL must be set when GEMINI_API_KEY is configured")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		bad("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		bad("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// String renders the configuration for startup logging. The database URL
// and the assistant API key are masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: {Host: %q, Port: %d}, "+
			"Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, "+
			"Upload: {MaxFileSize: %d, MaxConcurrent: %d, BatchSize: %d}, "+
			"Rate: {Enabled: %v, RequestsPerMinute: %d}, "+
			"RequestLog: {BufferSize: %d, Retention: %s}, "+
			"Assistant: {APIKey: [MASKED], Model: %q, Enabled: %v}, "+
			"Logging: {Level: %q, Format: %q}}",
		c.Server.Host, c.Server.Port,
		c.Database.MaxConns, c.Database.MinConns,
		c.Upload.MaxFileSize, c.Upload.MaxConcurrent, c.Upload.BatchSize,
		c.Rate.Enabled, c.Rate.RequestsPerMinute,
		c.RequestLog.BufferSize, c.RequestLog.Retention,
		c.Assistant.Model, c.Assistant.APIKey != "",
		c.Logging.Level, c.Logging.Format,
	)
}
