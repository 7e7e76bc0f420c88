package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/dgellow/grant-intake/internal/crypto"
	"github.com/dgellow/grant-intake/internal/envutil"
	"github.com/dgellow/grant-intake/internal/log"
	"github.com/dgellow/grant-intake/internal/urlutil"
)

// Defaults applied by Load when a field is left empty.
const (
	DefaultAddr                = "127.0.0.1:8787"
	DefaultFirestoreCollection = "grant_intake_sessions"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, VersionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := applyDefaults(&config); err != nil {
		return Config{}, err
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// secretFields must be environment references when present.
var secretFields = []struct {
	section string
	name    string
}{
	{"identity", "clientSecret"},
	{"identity", "refreshToken"},
	{"storage", "encryptionKey"},
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for _, f := range secretFields {
		section, ok := rawConfig[f.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[f.name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", f.section, f.name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", f.section, f.name)
			}
		}
	}
	return nil
}

func applyDefaults(config *Config) error {
	if config.Server.Addr == "" {
		config.Server.Addr = DefaultAddr
	}
	if config.Storage.Kind == "" {
		config.Storage.Kind = StorageKindMemory
	}
	if config.Storage.Kind == StorageKindFirestore && config.Storage.FirestoreCollection == "" {
		config.Storage.FirestoreCollection = DefaultFirestoreCollection
	}

	if config.Identity.DiscoveryURL == "" && config.Identity.TokenURL == "" && config.Identity.Issuer != "" {
		discovery, err := urlutil.WellKnown(config.Identity.Issuer)
		if err != nil {
			return fmt.Errorf("identity.issuer: %w", err)
		}
		config.Identity.DiscoveryURL = discovery
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if err := validateIdentityConfig(&config.Identity); err != nil {
		return fmt.Errorf("identity config: %w", err)
	}

	if config.Backend.BaseURL == "" {
		return fmt.Errorf("backend.baseUrl is required")
	}

	if config.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.maxAttempts cannot be negative")
	}
	if config.Retry.MaxInterval > 0 && config.Retry.InitialInterval > config.Retry.MaxInterval {
		return fmt.Errorf("retry.initialInterval cannot exceed retry.maxInterval")
	}

	if err := validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if host, _, err := net.SplitHostPort(config.Server.Addr); err == nil {
		if ip := net.ParseIP(host); host == "" || (ip != nil && !ip.IsLoopback()) {
			log.LogWarn("server.addr %s is reachable beyond loopback; the session API accepts password sign-in", config.Server.Addr)
		}
	}

	if config.Cache.RefreshMargin > 0 && config.Identity.RefreshLeeway > 0 &&
		config.Cache.RefreshMargin > config.Identity.RefreshLeeway {
		log.LogWarn("cache.refreshMargin exceeds identity.refreshLeeway; outgoing requests will ask the provider before it refreshes")
	}

	return nil
}

func validateIdentityConfig(identity *IdentityConfig) error {
	if identity.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if identity.DiscoveryURL == "" && identity.TokenURL == "" {
		return fmt.Errorf("one of issuer, discoveryUrl or tokenUrl is required")
	}
	return nil
}

func validateStorageConfig(storage *StorageConfig) error {
	switch storage.Kind {
	case StorageKindMemory:
		if storage.Quota < 0 {
			return fmt.Errorf("quota cannot be negative")
		}
	case StorageKindFirestore:
		if storage.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
		if storage.EncryptionKey == "" {
			if !envutil.IsDev() {
				return fmt.Errorf("encryptionKey is required for firestore storage outside development (%s=development)", envutil.EnvVar)
			}
			log.LogWarn("Profile cache in firestore is stored unencrypted; set storage.encryptionKey")
		}
	default:
		return fmt.Errorf("unknown storage kind %q (memory or firestore)", storage.Kind)
	}

	if storage.EncryptionKey != "" {
		if _, err := crypto.DecodeKey(string(storage.EncryptionKey)); err != nil {
			return fmt.Errorf("encryptionKey: %w. Generate with: intake-session -config-init", err)
		}
	}
	return nil
}
