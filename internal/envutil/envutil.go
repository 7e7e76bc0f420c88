package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the deployment environment.
const EnvVar = "GRANT_INTAKE_ENV"

// IsDev checks if we're running in development mode, where an unencrypted
// shared profile cache is tolerated
func IsDev() bool {
	env := strings.ToLower(os.Getenv(EnvVar))
	return env == "development" || env == "dev"
}
