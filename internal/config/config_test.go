package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"CS_DB_HOST":      "localhost",
		"CS_DB_NAME":      "chatsync",
		"CS_DB_USER":      "chatsync",
		"CS_DB_PASSWORD":  "secret",
		"CS_JWT_JWKS_URL": "https://auth.example.com/.well-known/jwks.json",
	}
}

// resetEnvs очищает обязательные переменные перед установкой набора теста.
func resetEnvs() {
	for k := range minimalEnvs() {
		os.Unsetenv(k)
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, ожидается disable", cfg.DBSSLMode)
	}
	if cfg.DBConnectTimeout != 10*time.Second {
		t.Errorf("DBConnectTimeout = %v, ожидается 10s", cfg.DBConnectTimeout)
	}
	if cfg.LocalDBPath != "chatsync.db" {
		t.Errorf("LocalDBPath = %q, ожидается chatsync.db", cfg.LocalDBPath)
	}
	if cfg.JWTIssuer != "" {
		t.Errorf("JWTIssuer = %q, ожидается пустая строка", cfg.JWTIssuer)
	}
	if len(cfg.JWTAlgorithms) != 1 || cfg.JWTAlgorithms[0] != "RS256" {
		t.Errorf("JWTAlgorithms = %v, ожидается [RS256]", cfg.JWTAlgorithms)
	}
	if cfg.JWTLeeway != 5*time.Second {
		t.Errorf("JWTLeeway = %v, ожидается 5s", cfg.JWTLeeway)
	}
	if cfg.JWKSRefreshInterval != 15*time.Minute {
		t.Errorf("JWKSRefreshInterval = %v, ожидается 15m", cfg.JWKSRefreshInterval)
	}
	if cfg.SyncOnStart {
		t.Error("SyncOnStart = true, ожидается false")
	}
	if cfg.SyncInterval != 0 {
		t.Errorf("SyncInterval = %v, ожидается 0", cfg.SyncInterval)
	}
	if cfg.DephealthGroup != "chatsync" {
		t.Errorf("DephealthGroup = %q, ожидается chatsync", cfg.DephealthGroup)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval = %v, ожидается 15s", cfg.DephealthCheckInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["CS_PORT"] = "9090"
	envs["CS_LOG_LEVEL"] = "debug"
	envs["CS_LOG_FORMAT"] = "text"
	envs["CS_DB_PORT"] = "5433"
	envs["CS_DB_SSL_MODE"] = "require"
	envs["CS_LOCAL_DB_PATH"] = "/var/lib/chatsync/local.db"
	envs["CS_JWT_ISSUER"] = "https://auth.example.com/"
	envs["CS_JWT_ALGORITHMS"] = "RS256, ES256"
	envs["CS_SESSION_TOKEN_FILE"] = "/run/chatsync/token"
	envs["CS_SYNC_ON_START"] = "true"
	envs["CS_SYNC_INTERVAL"] = "30m"
	envs["CS_SHUTDOWN_TIMEOUT"] = "10s"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, ожидается 9090", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.DBPort != 5433 {
		t.Errorf("DBPort = %d, ожидается 5433", cfg.DBPort)
	}
	if cfg.DBSSLMode != "require" {
		t.Errorf("DBSSLMode = %q, ожидается require", cfg.DBSSLMode)
	}
	if cfg.LocalDBPath != "/var/lib/chatsync/local.db" {
		t.Errorf("LocalDBPath = %q", cfg.LocalDBPath)
	}
	if cfg.JWTIssuer != "https://auth.example.com" {
		t.Errorf("JWTIssuer = %q, ожидается без trailing slash", cfg.JWTIssuer)
	}
	if len(cfg.JWTAlgorithms) != 2 || cfg.JWTAlgorithms[1] != "ES256" {
		t.Errorf("JWTAlgorithms = %v, ожидается [RS256 ES256]", cfg.JWTAlgorithms)
	}
	if cfg.SessionTokenFile != "/run/chatsync/token" {
		t.Errorf("SessionTokenFile = %q", cfg.SessionTokenFile)
	}
	if !cfg.SyncOnStart {
		t.Error("SyncOnStart = false, ожидается true")
	}
	if cfg.SyncInterval != 30*time.Minute {
		t.Errorf("SyncInterval = %v, ожидается 30m", cfg.SyncInterval)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	requiredVars := []string{
		"CS_DB_HOST", "CS_DB_NAME", "CS_DB_USER", "CS_DB_PASSWORD", "CS_JWT_JWKS_URL",
	}

	for _, missing := range requiredVars {
		t.Run(missing, func(t *testing.T) {
			envs := minimalEnvs()
			delete(envs, missing)
			resetEnvs()
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() не вернул ошибку при отсутствии %s", missing)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"порт ноль", "CS_PORT", "0"},
		{"порт выше диапазона", "CS_PORT", "70000"},
		{"порт не число", "CS_PORT", "abc"},
		{"уровень логирования", "CS_LOG_LEVEL", "verbose"},
		{"формат логов", "CS_LOG_FORMAT", "xml"},
		{"режим SSL", "CS_DB_SSL_MODE", "prefer"},
		{"длительность", "CS_SYNC_INTERVAL", "abc"},
		{"отрицательный интервал", "CS_SYNC_INTERVAL", "-1m"},
		{"логическое значение", "CS_SYNC_ON_START", "maybe"},
		{"пустой список алгоритмов", "CS_JWT_ALGORITHMS", " , "},
		{"leeway", "CS_JWT_LEEWAY", "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			resetEnvs()
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() не вернул ошибку при %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.example.com",
		DBPort:     5432,
		DBName:     "chatsync",
		DBUser:     "user",
		DBPassword: "pass",
		DBSSLMode:  "disable",
	}
	expected := "host=db.example.com port=5432 dbname=chatsync user=user password=pass sslmode=disable"
	if dsn := cfg.DatabaseDSN(); dsn != expected {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", dsn, expected)
	}

	if u := cfg.DatabaseURL(); u != "postgres://db.example.com:5432/chatsync" {
		t.Errorf("DatabaseURL() = %q", u)
	}
}

func TestSetupLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			logger := SetupLogger(&Config{LogLevel: slog.LevelInfo, LogFormat: format})
			if logger == nil {
				t.Error("SetupLogger() вернул nil")
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", nil},
		{"RS256", []string{"RS256"}},
		{"RS256, ES256", []string{"RS256", "ES256"}},
		{"RS256,,ES256,", []string{"RS256", "ES256"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseCSV(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("parseCSV(%q) = %v, ожидается %v", tt.input, result, tt.expected)
			}
			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("parseCSV(%q)[%d] = %q, ожидается %q", tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}
