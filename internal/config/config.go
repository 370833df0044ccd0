package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every service setting.
type Config struct {
	Server   ServerConfig
	Gateway  GatewayConfig
	Storage  StorageConfig
	Personas PersonaConfig
	Identity IdentityConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	gateway, err := loadGatewayConfig()
	if err != nil {
		return nil, err
	}

	storage := loadStorageConfig()

	personas, err := loadPersonaConfig()
	if err != nil {
		return nil, err
	}

	identity, err := loadIdentityConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Gateway:  gateway,
		Storage:  storage,
		Personas: personas,
		Identity: identity,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// GatewayConfig describes the model gateway and analysis tuning.
type GatewayConfig struct {
	BaseURL          string
	APIKey           string
	DefaultProvider  string
	DefaultModel     string
	Providers        []string
	IdleTimeout      time.Duration
	TotalTimeout     time.Duration
	Concurrency      int
	MaxDocumentChars int
}

// Enabled reports whether the gateway is configured.
func (c GatewayConfig) Enabled() bool {
	return c.BaseURL != "" && c.DefaultProvider != "" && c.DefaultModel != ""
}

func loadGatewayConfig() (GatewayConfig, error) {
	idle, err := parseDurationEnv("STREAM_IDLE_TIMEOUT", 30*time.Second)
	if err != nil {
		return GatewayConfig{}, err
	}

	total, err := parseDurationEnv("STREAM_TOTAL_TIMEOUT", 180*time.Second)
	if err != nil {
		return GatewayConfig{}, err
	}

	concurrency, err := parseIntEnv("ANALYSIS_CONCURRENCY", 2)
	if err != nil {
		return GatewayConfig{}, err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	maxChars, err := parseIntEnv("MAX_DOCUMENT_CHARS", 8000)
	if err != nil {
		return GatewayConfig{}, err
	}

	var providers []string
	if raw := strings.TrimSpace(os.Getenv("GATEWAY_PROVIDERS")); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				providers = append(providers, p)
			}
		}
	}

	return GatewayConfig{
		BaseURL:          strings.TrimSpace(os.Getenv("GATEWAY_BASE_URL")),
		APIKey:           strings.TrimSpace(os.Getenv("GATEWAY_API_KEY")),
		DefaultProvider:  strings.TrimSpace(os.Getenv("DEFAULT_PROVIDER")),
		DefaultModel:     strings.TrimSpace(os.Getenv("DEFAULT_MODEL")),
		Providers:        providers,
		IdleTimeout:      idle,
		TotalTimeout:     total,
		Concurrency:      concurrency,
		MaxDocumentChars: maxChars,
	}, nil
}

// StorageConfig describes local persistence locations. An empty
// SQLitePath selects the in-memory record store.
type StorageConfig struct {
	DataDir    string
	SQLitePath string
}

func loadStorageConfig() StorageConfig {
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	return StorageConfig{
		DataDir:    dataDir,
		SQLitePath: getEnvOrDefault("SQLITE_PATH", dataDir+"/roundtable.db"),
	}
}

// PersonaConfig describes where reviewer profiles are loaded from.
type PersonaConfig struct {
	Dir   string
	Watch bool
}

func loadPersonaConfig() (PersonaConfig, error) {
	watch, err := parseBoolEnv("PERSONAS_WATCH", true)
	if err != nil {
		return PersonaConfig{}, err
	}
	return PersonaConfig{
		Dir:   getEnvOrDefault("PERSONAS_DIR", "./personas"),
		Watch: watch,
	}, nil
}

// IdentityConfig describes how the caller identity is extracted from
// access-proxy headers.
type IdentityConfig struct {
	EmailHeader string
	AdminUsers  []string
	Debug       bool
}

// IsAdmin reports whether email is on the admin allowlist.
func (c IdentityConfig) IsAdmin(email string) bool {
	for _, admin := range c.AdminUsers {
		if strings.EqualFold(admin, email) {
			return true
		}
	}
	return false
}

func loadIdentityConfig() (IdentityConfig, error) {
	debug, err := parseBoolEnv("DEBUG", false)
	if err != nil {
		return IdentityConfig{}, err
	}

	var admins []string
	for _, email := range strings.Split(os.Getenv("ADMIN_USERS"), ",") {
		if email = strings.TrimSpace(email); email != "" {
			admins = append(admins, email)
		}
	}

	return IdentityConfig{
		EmailHeader: getEnvOrDefault("ACCESS_EMAIL_HEADER", "CF-Access-Authenticated-User-Email"),
		AdminUsers:  admins,
		Debug:       debug,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	// Accept both bare seconds and Go duration syntax.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
