package env

import (
	"os"

	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the first .env file it finds. A missing file is not
// fatal: containerized deployments pass configuration through real
// environment variables and config.Load validates the result either way.
func SetupEnvFile() {
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/linklock to project root
		"../../../.env", // Fallback for deeper nesting
	}

	for _, envFile := range envFiles {
		if loaded, err := godotenv.Read(envFile); err == nil {
			Env = loaded
			return
		}
	}
}

func IsLocal() bool {
	return GetEnv("APP_ENV", "production") == "local"
}
