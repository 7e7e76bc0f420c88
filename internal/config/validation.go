package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", VersionPrefix)
	} else if !strings.HasPrefix(version, VersionPrefix) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, VersionPrefix, VersionPrefix)
	}

	for _, f := range secretFields {
		section, _ := rawConfig[f.section].(map[string]any)
		if v, ok := section[f.name].(string); ok && v != "" {
			result.addError(f.section+"."+f.name, "must use {\"$env\": \"VAR_NAME\"} instead of a literal value")
		}
	}

	validateIdentityStructure(rawConfig, result)
	validateBackendStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)
	validateDurations(rawConfig, result)

	return result, nil
}

func validateIdentityStructure(rawConfig map[string]any, result *ValidationResult) {
	identity, ok := rawConfig["identity"].(map[string]any)
	if !ok {
		result.addError("identity", "identity field is required and must be an object")
		return
	}

	if _, ok := identity["clientId"]; !ok {
		result.addError("identity.clientId", "clientId is required")
	}

	_, hasIssuer := identity["issuer"]
	_, hasDiscovery := identity["discoveryUrl"]
	_, hasToken := identity["tokenUrl"]
	if !hasIssuer && !hasDiscovery && !hasToken {
		result.addError("identity", "one of issuer, discoveryUrl or tokenUrl is required")
	}
	if hasToken && !hasDiscovery {
		if _, ok := identity["revocationUrl"]; !ok {
			result.addWarning("identity.revocationUrl", "no revocation endpoint configured; sign-out will only be local")
		}
	}

	if scopes, ok := identity["scopes"].([]any); ok {
		hasOffline := false
		for _, s := range scopes {
			if s == "offline_access" {
				hasOffline = true
			}
		}
		if !hasOffline {
			result.addWarning("identity.scopes", "offline_access is not requested; the provider may not issue a refresh token")
		}
	}
}

func validateBackendStructure(rawConfig map[string]any, result *ValidationResult) {
	backend, ok := rawConfig["backend"].(map[string]any)
	if !ok {
		result.addError("backend", "backend field is required and must be an object")
		return
	}
	if _, ok := backend["baseUrl"]; !ok {
		result.addError("backend.baseUrl", "baseUrl is required. Example: \"https://api.grants.example.org\"")
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		return
	}

	kind, _ := storage["kind"].(string)
	switch kind {
	case "", string(StorageKindMemory):
	case string(StorageKindFirestore):
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required when using firestore storage")
		}
		if _, ok := storage["encryptionKey"]; !ok {
			result.addWarning("storage.encryptionKey", "profiles will be stored unencrypted in firestore")
		}
	default:
		result.addError("storage.kind", "unknown storage kind '%s' - use 'memory' or 'firestore'", kind)
	}
}

// durationFields lists every duration string in the config.
var durationFields = map[string][]string{
	"identity": {"refreshLeeway"},
	"backend":  {"requestTimeout"},
	"timeouts": {"credential", "session", "profile", "store", "signOut"},
	"cache":    {"refreshMargin", "profileTtl"},
	"retry":    {"initialInterval", "maxInterval"},
}

func validateDurations(rawConfig map[string]any, result *ValidationResult) {
	parsed := map[string]time.Duration{}
	for section, fields := range durationFields {
		obj, ok := rawConfig[section].(map[string]any)
		if !ok {
			continue
		}
		for _, field := range fields {
			value, exists := obj[field]
			if !exists {
				continue
			}
			path := section + "." + field
			s, ok := value.(string)
			if !ok {
				result.addError(path, "must be a duration string such as \"5s\"")
				continue
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				result.addError(path, "invalid duration %q", s)
				continue
			}
			if d < 0 {
				result.addError(path, "cannot be negative")
				continue
			}
			parsed[path] = d
		}
	}

	if credential, ok := parsed["timeouts.credential"]; ok {
		if session, ok := parsed["timeouts.session"]; ok && credential > session {
			result.addWarning("timeouts.credential", "credential budget (%s) is longer than the startup session budget (%s)", credential, session)
		}
	}
	if margin, ok := parsed["cache.refreshMargin"]; ok {
		if leeway, ok := parsed["identity.refreshLeeway"]; ok && margin > leeway {
			result.addWarning("cache.refreshMargin", "refreshMargin (%s) exceeds identity.refreshLeeway (%s); requests will ask the provider before it refreshes", margin, leeway)
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	bashStyleRegex := regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
