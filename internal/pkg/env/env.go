package env

import (
	"os"

	"github.com/joho/godotenv"
)

var Env map[string]string

// GetEnv returns the value for key from the loaded .env file, falling back to
// the process environment (Docker/tests) and then to def.
func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the project .env file. It is optional: when no file is
// found the process environment alone is used (container deployments).
func SetupEnvFile() {
	envFiles := []string{
		".env",       // project root
		"../../.env", // from cmd/migrate to project root
	}

	for _, envFile := range envFiles {
		if loaded, err := godotenv.Read(envFile); err == nil {
			Env = loaded
			return
		}
	}
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
