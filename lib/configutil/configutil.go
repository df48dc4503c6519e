package configutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

type options[T any] struct {
	dotenv       []string
	loadDotenv   bool
	defaults     *T
	envPrefix    string
	applyEnv     func(env *EnvOverrides, out *T)
	allowMissing bool
}

type Option[T any] func(o *options[T])

// WithDotenv loads the given .env files (".env" when none are given) before
// anything is read.
func WithDotenv[T any](files ...string) Option[T] {
	return func(o *options[T]) {
		o.loadDotenv = true
		o.dotenv = files
	}
}

// WithDefaults fills every field the files leave empty from defaults.
func WithDefaults[T any](defaults T) Option[T] {
	return func(o *options[T]) {
		o.defaults = &defaults
	}
}

// WithEnv runs apply after the files and defaults are merged, a parse error
// of any variable fails the read.
func WithEnv[T any](prefix string, apply func(env *EnvOverrides, out *T)) Option[T] {
	return func(o *options[T]) {
		o.envPrefix = prefix
		o.applyEnv = apply
	}
}

// AllowMissing treats a missing config file as an empty one.
func AllowMissing[T any]() Option[T] {
	return func(o *options[T]) {
		o.allowMissing = true
	}
}

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// layers returns <name>.<ext> and <name>.local.<ext>, lowest priority first.
func layers(name string) []string {
	prefix, ext := splitExt(filepath.Base(name))
	return []string{
		name,
		filepath.Join(filepath.Dir(name), fmt.Sprintf("%s.local.%s", prefix, ext)),
	}
}

func readLayers[T any](name string) (T, error) {
	var out T
	found := false
	for i, path := range layers(name) {
		content, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return out, err
		}
		if len(content) == 0 {
			continue
		}

		var layer T
		err = json5.Unmarshal(content, &layer)
		if err != nil {
			return out, fmt.Errorf("parse %s: %w", path, err)
		}
		err = mergo.Merge(&out, layer, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		if i > 0 {
			slog.Info("merging config with local overrides", "local", path)
		}
		found = true
	}
	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

func (o options[T]) finish(out T, err error) (T, error) {
	if errors.Is(err, os.ErrNotExist) && o.allowMissing {
		err = nil
	}
	if err != nil {
		return out, err
	}

	if o.defaults != nil {
		err = mergo.Merge(&out, *o.defaults)
		if err != nil {
			return out, err
		}
	}
	if o.applyEnv != nil {
		env := EnvOverrides{Prefix: o.envPrefix}
		o.applyEnv(&env, &out)
		if env.Err != nil {
			return out, env.Err
		}
	}
	return out, nil
}

func collect[T any](opts []Option[T]) (options[T], error) {
	var o options[T]
	for _, opt := range opts {
		opt(&o)
	}
	if o.loadDotenv {
		err := LoadDotenv(o.dotenv...)
		if err != nil {
			return o, err
		}
	}
	return o, nil
}

// ReadConfig reads a configuration file, `name` should come with a file extension,
// it will automatically be lopped off to produce the other extensions.
// this function will merge the following, where higher number is more prioritized.
//  1. defaults (WithDefaults)
//  2. <name>.<ext>
//  3. <name>.local.<ext>
//  4. environment variables (WithEnv), after .env files are loaded (WithDotenv)
//
// os.ErrNotExist is returned when neither file exists, unless AllowMissing is given.
func ReadConfig[T any](name string, opts ...Option[T]) (T, error) {
	o, err := collect(opts)
	if err != nil {
		var out T
		return out, err
	}
	return o.finish(readLayers[T](name))
}

// ReadConfig but it recursively goes up the filesystem until the root
// to find a configuration file matching the name.
func ReadRecursively[T any](name string, opts ...Option[T]) (T, error) {
	var defaultOut T

	o, err := collect(opts)
	if err != nil {
		return defaultOut, err
	}

	root, err := filepath.Abs("/")
	if err != nil {
		return defaultOut, err
	}
	current, err := os.Getwd()
	if err != nil {
		return defaultOut, err
	}

	for current != root {
		config, err := readLayers[T](filepath.Join(current, name))
		if errors.Is(err, os.ErrNotExist) {
			current = filepath.Dir(current)
			continue
		}
		return o.finish(config, err)
	}

	return o.finish(defaultOut, os.ErrNotExist)
}
