package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// defaultEnvFiles are read in order; a variable already set by an earlier
// file or by the real environment is never overwritten.
var defaultEnvFiles = []string{".env.local", ".env"}

// loadEnvFiles exports the variables in each existing file. Missing files
// are skipped.
func loadEnvFiles(paths []string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}
