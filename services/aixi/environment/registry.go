// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package environment

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
)

// Options are string-valued settings passed to an environment factory,
// taken from the "environment.options" configuration section.
type Options map[string]string

// Float returns the option as a float64, or def when unset.
func (o Options) Float(key string, def float64) (float64, error) {
	raw, ok := o[key]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalidOption, key, raw, err)
	}
	return v, nil
}

// Int returns the option as an int, or def when unset.
func (o Options) Int(key string, def int) (int, error) {
	raw, ok := o[key]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalidOption, key, raw, err)
	}
	return v, nil
}

// Factory builds an environment. rng is the environment's own random
// source, separate from the agent's.
type Factory func(opts Options, rng *rand.Rand) (Environment, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a factory available under name. It panics on duplicate
// names, which can only happen at init time.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("environment: duplicate registration of " + name)
	}
	registry[name] = f
}

// Names returns the registered environment names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named environment and wraps it with Validate.
func New(name string, opts Options, rng *rand.Rand) (*Validated, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownEnvironment, name, Names())
	}
	env, err := f(opts, rng)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return Validate(env)
}
