package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// envFileNames are tried in the working directory and then the content root.
var envFileNames = []string{".env", ".env.local"}

// loadEnvFiles loads every env file that exists. Variables already present in
// the process environment are not overwritten, so earlier files and the real
// environment win. It returns the files that were loaded.
func loadEnvFiles(root string) []string {
	var candidates []string
	if wd, err := os.Getwd(); err == nil {
		for _, name := range envFileNames {
			candidates = append(candidates, filepath.Join(wd, name))
		}
	}
	for _, name := range envFileNames {
		candidates = append(candidates, filepath.Join(root, name))
	}

	seen := make(map[string]bool, len(candidates))
	var loaded []string
	for _, p := range candidates {
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			continue
		}
		loaded = append(loaded, p)
	}
	return loaded
}
