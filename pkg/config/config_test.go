package config

import (
	"os"
	"testing"
	"time"

	"github.com/vuraweg/prepgate/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "returns true for 'true'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "returns true for '1'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "1",
			want:         true,
		},
		{
			name:         "returns false for 'false'",
			key:          "TEST_BOOL",
			defaultValue: true,
			envValue:     "false",
			want:         false,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_BOOL_NOT_SET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
		{
			name:         "returns true for 'TRUE' (case insensitive)",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "TRUE",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvInt tests the getEnvInt helper function
func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns parsed int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "42",
			want:         42,
		},
		{
			name:         "returns default for invalid int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "invalid",
			want:         10,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOT_SET",
			defaultValue: 10,
			envValue:     "",
			want:         10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns parsed duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default for invalid duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOT_SET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestParseLogLevel tests the parseLogLevel function
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  observability.LogLevel
	}{
		{
			name:  "debug",
			level: "debug",
			want:  observability.DebugLevel,
		},
		{
			name:  "DEBUG uppercase",
			level: "DEBUG",
			want:  observability.DebugLevel,
		},
		{
			name:  "info",
			level: "info",
			want:  observability.InfoLevel,
		},
		{
			name:  "warn",
			level: "warn",
			want:  observability.WarnLevel,
		},
		{
			name:  "warning",
			level: "warning",
			want:  observability.WarnLevel,
		},
		{
			name:  "error",
			level: "error",
			want:  observability.ErrorLevel,
		},
		{
			name:  "invalid defaults to info",
			level: "invalid",
			want:  observability.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLogLevel(tt.level)
			if got != tt.want {
				t.Errorf("parseLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestLoadServerConfig tests the loadServerConfig function
func TestLoadServerConfig(t *testing.T) {
	// Save current env and restore after test
	envVars := []string{
		"PREPGATE_HOST",
		"PREPGATE_PORT",
		"PREPGATE_READ_TIMEOUT",
		"PREPGATE_WRITE_TIMEOUT",
		"PREPGATE_IDLE_TIMEOUT",
		"PREPGATE_SHUTDOWN_TIMEOUT",
		"PREPGATE_OPS_PORT",
		"PREPGATE_CORS_ORIGINS",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("defaults", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		got := loadServerConfig()
		if got.Host != "0.0.0.0" {
			t.Errorf("Host = %v, want 0.0.0.0", got.Host)
		}
		if got.Port != "8080" {
			t.Errorf("Port = %v, want 8080", got.Port)
		}
		if got.OpsPort != "9090" {
			t.Errorf("OpsPort = %v, want 9090", got.OpsPort)
		}
		if got.ReadTimeout != 15*time.Second {
			t.Errorf("ReadTimeout = %v, want 15s", got.ReadTimeout)
		}
		if len(got.CORSOrigins) != 0 {
			t.Errorf("CORSOrigins = %v, want empty", got.CORSOrigins)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}
		os.Setenv("PREPGATE_HOST", "localhost")
		os.Setenv("PREPGATE_PORT", "3000")
		os.Setenv("PREPGATE_OPS_PORT", "9091")
		os.Setenv("PREPGATE_READ_TIMEOUT", "30s")
		os.Setenv("PREPGATE_CORS_ORIGINS", "https://portal.example.com, https://staging.example.com")

		got := loadServerConfig()
		if got.Host != "localhost" {
			t.Errorf("Host = %v, want localhost", got.Host)
		}
		if got.Port != "3000" {
			t.Errorf("Port = %v, want 3000", got.Port)
		}
		if got.OpsPort != "9091" {
			t.Errorf("OpsPort = %v, want 9091", got.OpsPort)
		}
		if got.ReadTimeout != 30*time.Second {
			t.Errorf("ReadTimeout = %v, want 30s", got.ReadTimeout)
		}
		if len(got.CORSOrigins) != 2 || got.CORSOrigins[0] != "https://portal.example.com" || got.CORSOrigins[1] != "https://staging.example.com" {
			t.Errorf("CORSOrigins = %v, want two trimmed origins", got.CORSOrigins)
		}
	})
}

// TestLoadRateLimitConfig tests the loadRateLimitConfig function
func TestLoadRateLimitConfig(t *testing.T) {
	envVars := []string{
		"PREPGATE_RATE_MAX_ATTEMPTS",
		"PREPGATE_RATE_ATTEMPT_WINDOW",
		"PREPGATE_RATE_LOCKOUT",
		"PREPGATE_RATE_GLOBAL_MULTIPLIER",
		"PREPGATE_RATE_PROGRESSIVE",
		"PREPGATE_RATE_MAX_LOCKOUT",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("defaults to production policy", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		p := loadRateLimitConfig()
		if p.MaxAttempts != 5 {
			t.Errorf("MaxAttempts = %v, want 5", p.MaxAttempts)
		}
		if p.AttemptWindow != 5*time.Minute {
			t.Errorf("AttemptWindow = %v, want 5m", p.AttemptWindow)
		}
		if p.LockoutDuration != 15*time.Minute {
			t.Errorf("LockoutDuration = %v, want 15m", p.LockoutDuration)
		}
	})

	t.Run("overrides from env", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}
		os.Setenv("PREPGATE_RATE_MAX_ATTEMPTS", "3")
		os.Setenv("PREPGATE_RATE_LOCKOUT", "1h")

		p := loadRateLimitConfig()
		if p.MaxAttempts != 3 {
			t.Errorf("MaxAttempts = %v, want 3", p.MaxAttempts)
		}
		if p.LockoutDuration != time.Hour {
			t.Errorf("LockoutDuration = %v, want 1h", p.LockoutDuration)
		}
	})
}

// TestLoadSessionConfig tests the loadSessionConfig function
func TestLoadSessionConfig(t *testing.T) {
	envVars := []string{
		"PREPGATE_SESSION_INIT_TIMEOUT",
		"PREPGATE_SESSION_REFRESH_INTERVAL",
		"PREPGATE_SESSION_MAX_CONTEXTS",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	for _, k := range envVars {
		os.Unsetenv(k)
	}

	got := loadSessionConfig()
	if got.InitTimeout != 2*time.Second {
		t.Errorf("InitTimeout = %v, want 2s", got.InitTimeout)
	}
	if got.RefreshInterval != 60*time.Second {
		t.Errorf("RefreshInterval = %v, want 60s", got.RefreshInterval)
	}
	if got.MaxContexts != 100000 {
		t.Errorf("MaxContexts = %v, want 100000", got.MaxContexts)
	}

	os.Setenv("PREPGATE_SESSION_INIT_TIMEOUT", "500ms")
	got = loadSessionConfig()
	if got.InitTimeout != 500*time.Millisecond {
		t.Errorf("InitTimeout = %v, want 500ms", got.InitTimeout)
	}
}

func validTestConfig() Config {
	cfg := Config{
		Server: ServerConfig{
			Port:    "8080",
			OpsPort: "9090",
		},
	}
	cfg.Postgres.URL = "postgres://localhost/prepgate"
	cfg.Provider.BaseURL = "https://project.example.co/auth/v1"
	cfg.Provider.ProofSecret = "secret"
	cfg.Payment.SigningSecret = "pay-secret"
	return cfg
}

// TestConfigValidate tests the Config.Validate method
func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := validTestConfig()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})

	t.Run("missing server port", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Server.Port = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "server port is required" {
			t.Errorf("Validate() error = %v, want 'server port is required'", err.Error())
		}
	})

	t.Run("missing ops port", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Server.OpsPort = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "ops port is required" {
			t.Errorf("Validate() error = %v, want 'ops port is required'", err.Error())
		}
	})

	t.Run("same server and ops port", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Server.OpsPort = cfg.Server.Port
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "server port and ops port must be different" {
			t.Errorf("Validate() error = %v, want 'server port and ops port must be different'", err.Error())
		}
	})

	t.Run("missing postgres url", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Postgres.URL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("missing provider url", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Provider.BaseURL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("missing proof secret", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Provider.ProofSecret = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("missing payment secret", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Payment.SigningSecret = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("oauth enabled without redirect url", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.OAuth.Enabled = true
		cfg.OAuth.IssuerURL = "https://accounts.google.com"
		cfg.OAuth.ClientID = "client"
		cfg.OAuth.ClientSecret = "secret"
		cfg.OAuth.RedirectURL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("otel enabled without endpoint", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Observability.OTelEnabled = true
		cfg.Observability.OTelEndpoint = ""
		cfg.Observability.OTelServiceName = "test"
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "OpenTelemetry endpoint is required when OTel is enabled" {
			t.Errorf("Validate() error = %v, want 'OpenTelemetry endpoint is required when OTel is enabled'", err.Error())
		}
	})
}

// TestLoadConfig tests the LoadConfig function
func TestLoadConfig(t *testing.T) {
	envVars := []string{
		"PREPGATE_PORT",
		"PREPGATE_OPS_PORT",
		"PREPGATE_POSTGRES_URL",
		"PREPGATE_PROVIDER_URL",
		"PREPGATE_PROOF_SECRET",
		"PREPGATE_PAYMENT_SECRET",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name: "valid config",
			env: map[string]string{
				"PREPGATE_PORT":           "8080",
				"PREPGATE_OPS_PORT":       "9090",
				"PREPGATE_POSTGRES_URL":   "postgres://localhost/prepgate",
				"PREPGATE_PROVIDER_URL":   "https://project.example.co/auth/v1",
				"PREPGATE_PROOF_SECRET":   "secret",
				"PREPGATE_PAYMENT_SECRET": "pay-secret",
			},
			wantErr: false,
		},
		{
			name: "invalid config - same ports",
			env: map[string]string{
				"PREPGATE_PORT":     "8080",
				"PREPGATE_OPS_PORT": "8080",
			},
			wantErr: true,
		},
		{
			name: "invalid config - no postgres",
			env: map[string]string{
				"PREPGATE_PORT":           "8080",
				"PREPGATE_OPS_PORT":       "9090",
				"PREPGATE_PROVIDER_URL":   "https://project.example.co/auth/v1",
				"PREPGATE_PROOF_SECRET":   "secret",
				"PREPGATE_PAYMENT_SECRET": "pay-secret",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all env vars
			for _, k := range envVars {
				os.Unsetenv(k)
			}

			// Set test env vars
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && cfg == nil {
				t.Error("LoadConfig() returned nil config without error")
			}
		})
	}
}
