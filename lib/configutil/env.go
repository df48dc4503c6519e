package configutil

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotenv loads the given .env files (".env" when none are given) into
// the process environment. Missing files are skipped and variables that are
// already set are never overwritten.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// EnvOverrides applies environment variables on top of a config read from
// disk. Every setter is a no-op when its variable is unset or blank and the
// first parse error is kept in Err.
type EnvOverrides struct {
	Prefix string
	Err    error
}

func (e *EnvOverrides) lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(e.Prefix + key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (e *EnvOverrides) fail(key string, err error) {
	if e.Err == nil {
		e.Err = fmt.Errorf("%s%s: %w", e.Prefix, key, err)
	}
}

func (e *EnvOverrides) String(key string, dst *string) {
	if value, ok := e.lookup(key); ok {
		*dst = value
	}
}

func (e *EnvOverrides) Int(key string, dst *int) {
	value, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = parsed
}

func (e *EnvOverrides) Float(key string, dst *float64) {
	value, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = parsed
}

func (e *EnvOverrides) Bool(key string, dst *bool) {
	value, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = parsed
}
