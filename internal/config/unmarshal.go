package config

import (
	"encoding/json"
	"fmt"
	"time"
)

func parseString(raw json.RawMessage, field string) (string, error) {
	if raw == nil {
		return "", nil
	}
	v, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return v, nil
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative", field)
	}
	return d, nil
}

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type rawServer struct {
		Addr           json.RawMessage   `json:"addr"`
		AllowedOrigins []json.RawMessage `json:"allowedOrigins"`
		PrivilegedRole string            `json:"privilegedRole"`
	}

	var raw rawServer
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	addr, err := parseString(raw.Addr, "addr")
	if err != nil {
		return err
	}
	s.Addr = addr
	s.PrivilegedRole = raw.PrivilegedRole

	if len(raw.AllowedOrigins) > 0 {
		origins, err := ParseConfigValueSlice(raw.AllowedOrigins)
		if err != nil {
			return fmt.Errorf("parsing allowedOrigins: %w", err)
		}
		s.AllowedOrigins = origins
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for IdentityConfig
func (c *IdentityConfig) UnmarshalJSON(data []byte) error {
	type rawIdentity struct {
		Issuer        json.RawMessage `json:"issuer"`
		DiscoveryURL  json.RawMessage `json:"discoveryUrl"`
		TokenURL      json.RawMessage `json:"tokenUrl"`
		RevocationURL json.RawMessage `json:"revocationUrl"`
		ClientID      json.RawMessage `json:"clientId"`
		ClientSecret  json.RawMessage `json:"clientSecret"`
		Scopes        []string        `json:"scopes"`
		RefreshLeeway string          `json:"refreshLeeway"`
		RefreshToken  json.RawMessage `json:"refreshToken"`
	}

	var raw rawIdentity
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := []struct {
		raw  json.RawMessage
		name string
		dst  *string
	}{
		{raw.Issuer, "issuer", &c.Issuer},
		{raw.DiscoveryURL, "discoveryUrl", &c.DiscoveryURL},
		{raw.TokenURL, "tokenUrl", &c.TokenURL},
		{raw.RevocationURL, "revocationUrl", &c.RevocationURL},
		{raw.ClientID, "clientId", &c.ClientID},
	}
	for _, f := range fields {
		v, err := parseString(f.raw, f.name)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	secret, err := parseString(raw.ClientSecret, "clientSecret")
	if err != nil {
		return err
	}
	c.ClientSecret = Secret(secret)

	refresh, err := parseString(raw.RefreshToken, "refreshToken")
	if err != nil {
		return err
	}
	c.RefreshToken = Secret(refresh)

	c.Scopes = raw.Scopes
	if c.RefreshLeeway, err = parseDuration(raw.RefreshLeeway, "refreshLeeway"); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for BackendConfig
func (b *BackendConfig) UnmarshalJSON(data []byte) error {
	type rawBackend struct {
		BaseURL        json.RawMessage `json:"baseUrl"`
		RequestTimeout string          `json:"requestTimeout"`
	}

	var raw rawBackend
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if b.BaseURL, err = parseString(raw.BaseURL, "baseUrl"); err != nil {
		return err
	}
	if b.RequestTimeout, err = parseDuration(raw.RequestTimeout, "requestTimeout"); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for TimeoutsConfig
func (t *TimeoutsConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timeouts must be duration strings: %w", err)
	}

	fields := map[string]*time.Duration{
		"credential": &t.Credential,
		"session":    &t.Session,
		"profile":    &t.Profile,
		"store":      &t.Store,
		"signOut":    &t.SignOut,
	}
	for name, value := range raw {
		dst, ok := fields[name]
		if !ok {
			return fmt.Errorf("unknown timeout %q", name)
		}
		d, err := parseDuration(value, name)
		if err != nil {
			return err
		}
		*dst = d
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for CacheConfig
func (c *CacheConfig) UnmarshalJSON(data []byte) error {
	type rawCache struct {
		RefreshMargin string `json:"refreshMargin"`
		ProfileTTL    string `json:"profileTtl"`
	}

	var raw rawCache
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if c.RefreshMargin, err = parseDuration(raw.RefreshMargin, "refreshMargin"); err != nil {
		return err
	}
	if c.ProfileTTL, err = parseDuration(raw.ProfileTTL, "profileTtl"); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for RetryConfig
func (r *RetryConfig) UnmarshalJSON(data []byte) error {
	type rawRetry struct {
		MaxAttempts     int    `json:"maxAttempts"`
		InitialInterval string `json:"initialInterval"`
		MaxInterval     string `json:"maxInterval"`
	}

	var raw rawRetry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.MaxAttempts = raw.MaxAttempts
	var err error
	if r.InitialInterval, err = parseDuration(raw.InitialInterval, "initialInterval"); err != nil {
		return err
	}
	if r.MaxInterval, err = parseDuration(raw.MaxInterval, "maxInterval"); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind                StorageKind     `json:"kind"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
		CredentialsFile     json.RawMessage `json:"credentialsFile"`
		EncryptionKey       json.RawMessage `json:"encryptionKey"`
		Scope               string          `json:"scope"`
		Quota               int             `json:"quota"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection
	s.Scope = raw.Scope
	s.Quota = raw.Quota

	var err error
	if s.GCPProject, err = parseString(raw.GCPProject, "gcpProject"); err != nil {
		return err
	}
	if s.CredentialsFile, err = parseString(raw.CredentialsFile, "credentialsFile"); err != nil {
		return err
	}
	key, err := parseString(raw.EncryptionKey, "encryptionKey")
	if err != nil {
		return err
	}
	s.EncryptionKey = Secret(key)
	return nil
}
