// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotenv loads environment variables from a .env file before any
// configuration is resolved. When path is empty it searches the working
// directory and its parents, so tools started from a subdirectory still
// pick up the project's .env. Variables already set in the environment are
// never overridden. A missing file is not an error.
func LoadDotenv(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}

	found, ok := findDotenv()
	if !ok {
		return nil
	}
	return godotenv.Load(found)
}

// findDotenv walks up from the working directory until it finds a .env file
// or reaches the filesystem root.
func findDotenv() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
