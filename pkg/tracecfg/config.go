// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package tracecfg holds configuration of stack capture, symbolization and printing.
package tracecfg

import (
	"fmt"

	"github.com/google/stacktrace/pkg/config"
	"github.com/google/stacktrace/pkg/symbolizer"
)

type Config struct {
	// Maximum number of frames to capture (default: 32).
	MaxDepth uint `json:"max_depth"`
	// Number of innermost frames to drop, the capture routine itself is frame 0 (default: 1).
	Skip uint `json:"skip"`
	// Print machine address of every frame.
	Address bool `json:"address"`
	// Always print the object file line, even if source file is known.
	Object bool `json:"object"`
	// Print outermost frames first (default: true).
	Reverse bool `json:"reverse"`
	// Number of frames resolved in parallel (default: 1).
	Parallelism int `json:"parallelism"`
	// Maximum length of inlined call chain per frame (default: 64).
	InlineLimit int `json:"inline_limit"`
	// Number of parsed compile units kept per binary (default: 256).
	LineCacheSize int `json:"line_cache_size"`
	// Only use loader-visible symbols, don't open binaries.
	LoaderOnly bool `json:"loader_only"`
	// Log verbosity, see pkg/log.
	Verbosity int `json:"verbosity"`
}

const (
	MaxDepthLimit = 4096

	DefaultMaxDepth = 32
)

func Default() *Config {
	return &Config{
		MaxDepth:      DefaultMaxDepth,
		Skip:          1,
		Reverse:       true,
		Parallelism:   1,
		InlineLimit:   symbolizer.DefaultInlineLimit,
		LineCacheSize: symbolizer.DefaultLineCacheSize,
	}
}

func LoadFile(filename string) (*Config, error) {
	cfg := Default()
	if err := config.LoadFile(filename, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadData(data []byte) (*Config, error) {
	cfg := Default()
	if err := config.LoadData(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.MaxDepth > MaxDepthLimit {
		return fmt.Errorf("bad config param max_depth: %v, want [0, %v]", cfg.MaxDepth, MaxDepthLimit)
	}
	if cfg.Parallelism < 1 {
		return fmt.Errorf("bad config param parallelism: %v, want >= 1", cfg.Parallelism)
	}
	if cfg.InlineLimit < 1 {
		return fmt.Errorf("bad config param inline_limit: %v, want >= 1", cfg.InlineLimit)
	}
	if cfg.LineCacheSize < 1 {
		return fmt.Errorf("bad config param line_cache_size: %v, want >= 1", cfg.LineCacheSize)
	}
	return nil
}
