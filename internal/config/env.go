package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFileVar overrides the default env file location.
const EnvFileVar = "JUNTEK_ENV_FILE"

// DefaultEnvFilePath returns DefaultEnvFile under the user's home directory.
func DefaultEnvFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultEnvFile)
}

// EnvFilePath picks the env file from --env-file in args, then
// JUNTEK_ENV_FILE, then the default location.
func EnvFilePath(args []string, lookup func(string) string) string {
	for i := 0; i < len(args); i++ {
		arg := strings.TrimLeft(args[i], "-")
		if arg == args[i] {
			continue
		}
		if v, ok := strings.CutPrefix(arg, "env-file="); ok {
			return v
		}
		if arg == "env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if v := lookup(EnvFileVar); v != "" {
		return v
	}
	return DefaultEnvFilePath()
}

// LoadEnvFile exports the KEY=VALUE pairs of path into the process
// environment. Variables that are already set win. A missing file is not an
// error.
func LoadEnvFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return true, nil
}
