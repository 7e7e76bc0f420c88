package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// VersionPrefix is accepted at the start of the config "version" field.
const VersionPrefix = "v0.1-grant-intake"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the profile cache backend.
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindFirestore StorageKind = "firestore"
)

// ServerConfig configures the local session API.
type ServerConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowedOrigins"`
	PrivilegedRole string   `json:"privilegedRole"`
}

// IdentityConfig configures the OAuth2/OIDC identity provider client.
type IdentityConfig struct {
	Issuer        string        `json:"issuer"`
	DiscoveryURL  string        `json:"discoveryUrl"`
	TokenURL      string        `json:"tokenUrl"`
	RevocationURL string        `json:"revocationUrl"`
	ClientID      string        `json:"clientId"`
	ClientSecret  Secret        `json:"clientSecret"`
	Scopes        []string      `json:"scopes"`
	RefreshLeeway time.Duration `json:"refreshLeeway"`
	// RefreshToken seeds a persisted session at startup.
	RefreshToken Secret `json:"refreshToken"`
}

// BackendConfig configures the profile backend.
type BackendConfig struct {
	BaseURL        string        `json:"baseUrl"`
	RequestTimeout time.Duration `json:"requestTimeout"`
}

// TimeoutsConfig holds the per-call budgets of the session layer. Zero keeps
// the built-in default.
type TimeoutsConfig struct {
	Credential time.Duration `json:"credential"`
	Session    time.Duration `json:"session"`
	Profile    time.Duration `json:"profile"`
	Store      time.Duration `json:"store"`
	SignOut    time.Duration `json:"signOut"`
}

// CacheConfig tunes the credential and profile caches.
type CacheConfig struct {
	RefreshMargin time.Duration `json:"refreshMargin"`
	ProfileTTL    time.Duration `json:"profileTtl"`
}

// RetryConfig tunes profile fetch retries.
type RetryConfig struct {
	MaxAttempts     int           `json:"maxAttempts"`
	InitialInterval time.Duration `json:"initialInterval"`
	MaxInterval     time.Duration `json:"maxInterval"`
}

// StorageConfig configures where the profile cache lives.
type StorageConfig struct {
	Kind                StorageKind `json:"kind"`
	GCPProject          string      `json:"gcpProject,omitempty"`
	FirestoreDatabase   string      `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string      `json:"firestoreCollection,omitempty"`
	CredentialsFile     string      `json:"credentialsFile,omitempty"`
	EncryptionKey       Secret      `json:"encryptionKey,omitempty"`
	// Scope isolates this process's entries. Empty means a fresh id per run.
	Scope string `json:"scope,omitempty"`
	// Quota caps the memory store in bytes. Zero is unlimited.
	Quota int `json:"quota,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version  string         `json:"version"`
	Server   ServerConfig   `json:"server"`
	Identity IdentityConfig `json:"identity"`
	Backend  BackendConfig  `json:"backend"`
	Timeouts TimeoutsConfig `json:"timeouts"`
	Cache    CacheConfig    `json:"cache"`
	Retry    RetryConfig    `json:"retry"`
	Storage  StorageConfig  `json:"storage"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference, resolving the reference immediately.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

// ParseConfigValueSlice parses a slice that may contain references
func ParseConfigValueSlice(raw []json.RawMessage) ([]string, error) {
	values := make([]string, len(raw))
	for i, item := range raw {
		v, err := ParseConfigValue(item)
		if err != nil {
			return nil, fmt.Errorf("parsing item %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}
