package config

import (
	"os"

	"github.com/joho/godotenv"
)

// dotEnvFiles are loaded in order. godotenv.Load never overwrites a
// variable that is already set, so earlier files win over later ones and
// the real environment wins over both.
var dotEnvFiles = []string{".env.local", ".env"}

func loadDotEnv() {
	for _, f := range dotEnvFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			warnf("could not load %s: %v", f, err)
		}
	}
}
