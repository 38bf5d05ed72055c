package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file the way the teacher's cmd/server/main.go does:
// try a handful of likely locations and fall back to whatever is already in
// the process environment rather than failing startup.
func LoadEnv() {
	candidates := []string{
		filepath.Join("..", "..", ".env"),
		".env",
		filepath.Join(".", ".env"),
	}

	for _, path := range candidates {
		if err := godotenv.Load(path); err == nil {
			log.Printf("config: loaded .env file from %s", path)
			return
		}
	}
	log.Println("config: no .env file found, using system environment variables")
}

// RedisAddr returns the Redis address to write the forex store through, or
// "" if Redis is not configured (the Forex Store degrades to in-memory only
// when this is unset).
func RedisAddr() string {
	return os.Getenv("ORACLE_REDIS_ADDR")
}

// Validate refuses to start the process on an invalid compiled-in
// configuration, grounded on the teacher's log.Fatalf-on-startup-error
// convention in cmd/server/main.go.
func Validate() error {
	if InconsistencyThreshold <= 0 || InconsistencyThreshold > 1 {
		return fmt.Errorf("config: InconsistencyThreshold must be in (0,1], got %v", InconsistencyThreshold)
	}
	if len(PrivilegedPrincipals) == 0 {
		return fmt.Errorf("config: PrivilegedPrincipals must not be empty")
	}
	if MaxConcurrentRequests <= 0 {
		return fmt.Errorf("config: MaxConcurrentRequests must be positive")
	}
	return nil
}
