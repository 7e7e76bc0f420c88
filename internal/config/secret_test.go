package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestSecretRedaction(t *testing.T) {
	tests := []struct {
		name   string
		secret Secret
		want   string
	}{
		{
			name:   "non-empty secret",
			secret: Secret("super-secret-password"),
			want:   "***",
		},
		{
			name:   "empty secret",
			secret: Secret(""),
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Test String() method
			if got := tt.secret.String(); got != tt.want {
				t.Errorf("Secret.String() = %v, want %v", got, tt.want)
			}

			// Test fmt.Sprintf behavior
			formatted := fmt.Sprintf("value: %s", tt.secret)
			expectedFormatted := "value: " + tt.want
			if formatted != expectedFormatted {
				t.Errorf("fmt.Sprintf = %v, want %v", formatted, expectedFormatted)
			}

			// Test fmt.Printf (capture output)
			output := fmt.Sprintf("password: %v", tt.secret)
			if tt.secret != "" && strings.Contains(output, string(tt.secret)) {
				t.Errorf("fmt.Printf leaked secret: %v", output)
			}
		})
	}
}

func TestSecretJSONMarshal(t *testing.T) {
	cfg := IdentityConfig{
		ClientID:     "intake-portal",
		ClientSecret: Secret("client-secret-value"),
		RefreshToken: Secret("rt-1234567890abcdef"),
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}

	jsonStr := string(data)

	if strings.Contains(jsonStr, "client-secret-value") {
		t.Errorf("JSON contains unredacted client secret: %s", jsonStr)
	}
	if strings.Contains(jsonStr, "rt-1234567890abcdef") {
		t.Errorf("JSON contains unredacted refresh token: %s", jsonStr)
	}
	if !strings.Contains(jsonStr, `"clientId":"intake-portal"`) {
		t.Errorf("JSON doesn't contain client id: %s", jsonStr)
	}
	if !strings.Contains(jsonStr, `"clientSecret":"***"`) {
		t.Errorf("JSON client secret not redacted as ***: %s", jsonStr)
	}
}

func TestSecretInStruct(t *testing.T) {
	storage := StorageConfig{
		Kind:          StorageKindFirestore,
		GCPProject:    "grants-prod",
		EncryptionKey: Secret("0123456789abcdef0123456789abcdef"),
	}

	str := fmt.Sprintf("%+v", storage)
	if strings.Contains(str, "0123456789abcdef") {
		t.Errorf("Struct representation leaked encryption key: %s", str)
	}

	if storage.EncryptionKey.String() != "***" {
		t.Errorf("EncryptionKey.String() = %v, want ***", storage.EncryptionKey.String())
	}
}
