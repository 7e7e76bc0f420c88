package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/grant-intake/internal"
	"github.com/dgellow/grant-intake/internal/config"
	"github.com/dgellow/grant-intake/internal/crypto"
	"github.com/dgellow/grant-intake/internal/log"
)

var BuildVersion = "dev"

func defaultConfig() map[string]any {
	return map[string]any{
		"version": config.VersionPrefix,
		"server": map[string]any{
			"addr":           config.DefaultAddr,
			"allowedOrigins": []string{"https://apply.yourfoundation.org"},
			"privilegedRole": "admin",
		},
		"identity": map[string]any{
			"issuer":        "https://auth.yourfoundation.org",
			"clientId":      "grant-intake-portal",
			"clientSecret":  map[string]string{"$env": "IDP_CLIENT_SECRET"},
			"scopes":        []string{"openid", "email", "profile", "offline_access"},
			"refreshLeeway": "1m",
			"refreshToken":  map[string]string{"$env": "IDP_REFRESH_TOKEN"},
		},
		"backend": map[string]any{
			"baseUrl":        "https://api.yourfoundation.org",
			"requestTimeout": "15s",
		},
		"timeouts": map[string]any{
			"credential": "2s",
			"session":    "5s",
			"profile":    "10s",
			"store":      "1s",
			"signOut":    "5s",
		},
		"cache": map[string]any{
			"refreshMargin": "30s",
			"profileTtl":    "24h",
		},
		"retry": map[string]any{
			"maxAttempts":     3,
			"initialInterval": "250ms",
			"maxInterval":     "2s",
		},
		"storage": map[string]any{
			"kind":          "memory",
			"encryptionKey": map[string]string{"$env": "PROFILE_ENCRYPTION_KEY"},
		},
	}
}

func generateDefaultConfig(path string) error {
	data, err := json.MarshalIndent(defaultConfig(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	printIssues := func(title string, issues []config.ValidationError) {
		if len(issues) == 0 {
			return
		}
		fmt.Printf("\n%s (%d):\n", title, len(issues))
		for _, issue := range issues {
			if issue.Path != "" {
				fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
			} else {
				fmt.Printf("  - %s\n", issue.Message)
			}
		}
	}
	printIssues("Errors", result.Errors)
	printIssues("Warnings", result.Warnings)

	fmt.Println()
	switch {
	case result.IsValid() && len(result.Warnings) == 0:
		fmt.Println("Result: PASS")
	case result.IsValid():
		fmt.Println("Result: FAIL (warnings present)")
	default:
		fmt.Println("Result: FAIL")
	}

	if !result.IsValid() || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		if key, err := crypto.GenerateSecureToken(); err == nil {
			fmt.Printf("Suggested PROFILE_ENCRYPTION_KEY: %s\n", key)
		}
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting intake-session", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	portal, err := internal.NewPortal(context.Background(), cfg)
	if err != nil {
		log.LogError("Failed to build session layer: %v", err)
		os.Exit(1)
	}

	if err := portal.Run(); err != nil {
		log.LogError("Session layer stopped with error: %v", err)
		os.Exit(1)
	}
}
