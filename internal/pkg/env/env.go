package env

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

var Env map[string]string

// GetEnv returns the value for key from the loaded .env file, falling back to
// OS environment variables (Docker/tests) and then to the provided default.
func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the first .env file found relative to the process. In
// container deployments no file exists and plain environment variables apply.
func SetupEnvFile() {
	envFiles := []string{
		".env",          // current directory
		"../../.env",    // from cmd/<binary> to project root
		"../../../.env", // fallback for deeper nesting
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return
		}
	}

	log.Println("no .env file found, using process environment only")
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
