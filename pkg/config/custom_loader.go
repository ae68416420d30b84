package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from the given .env files.
// With no arguments it loads the default .env file from the current
// directory. When multiple files are passed, later files override
// values from earlier ones.
//
// Unlike the implicit .env loading in Load, LoadEnv returns an error
// when a named file cannot be read.
//
// Example:
//
//	if err := config.LoadEnv(".env", ".env.local"); err != nil {
//		// Handle error
//	}
func LoadEnv(filenames ...string) error {
	if err := godotenv.Overload(filenames...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}

	// The default .env is covered now, skip the implicit load in Load
	defaultEnvLoaded.Do(func() {})

	return nil
}

// MustLoadEnv works like LoadEnv but panics if loading fails.
func MustLoadEnv(filenames ...string) {
	if err := LoadEnv(filenames...); err != nil {
		panic(fmt.Sprintf("Failed to load environment files: %v", err))
	}
}

// ResetCache clears all cached configurations so subsequent Load calls
// re-parse environment variables. Intended for tests that mutate the
// environment between loads.
func ResetCache() {
	globalCache.mu.Lock()
	globalCache.values = make(map[string]any)
	globalCache.onces = make(map[string]*sync.Once)
	globalCache.mu.Unlock()
}

// ForceReloadConfig parses environment variables into the provided
// struct, bypassing and replacing any cached value for its type.
func ForceReloadConfig[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	if parseErr := env.Parse(v); parseErr != nil {
		return errors.Join(ErrParsingConfig, parseErr)
	}

	typeName := getTypeName[T]()

	globalCache.mu.Lock()
	globalCache.values[typeName] = *v
	globalCache.onces[typeName] = new(sync.Once)
	globalCache.mu.Unlock()

	return nil
}
