// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads, saves and validates the library configuration file,
// a plain "key = value" text file under the data directory.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Registry backends.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Config holds all user-tunable settings.
type Config struct {
	DataDir          string // directory for the registry database and config file
	ListenAddr       string // metrics endpoint host:port
	Network          string // "mainnet", "testnet" or "regtest"
	LogLevel         string // "debug", "info", "warn" or "error"
	LogFile          string // empty means stderr
	Backend          string // registry backend
	PostgresDSN      string // required when Backend is "postgres"
	MetricsNamespace string
	Deployer         string // factory deployer, 0x hex or Base58 P2PKH; empty means the built-in account
}

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() Config {
	return Config{
		DataDir:          DefaultDataDir(),
		ListenAddr:       ":9464",
		Network:          "mainnet",
		LogLevel:         "info",
		LogFile:          "",
		Backend:          BackendBolt,
		PostgresDSN:      "",
		MetricsNamespace: "splitpay",
		Deployer:         "",
	}
}

// DefaultDataDir returns ~/.splitpay, or .splitpay in the working directory
// when the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".splitpay"
	}
	return filepath.Join(home, ".splitpay")
}

// ConfigPath returns the path of the config file inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config")
}

// RegistryPath returns the path of the bbolt registry database inside dataDir.
func RegistryPath(dataDir string) string {
	return filepath.Join(dataDir, "registry.db")
}

// LoadConfig reads the config file at path on top of DefaultConfig.
// Blank lines and lines starting with '#' are skipped; unknown keys are
// ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		applyKey(&cfg, key, value)
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// parseKeyValue splits a line on its first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

func applyKey(cfg *Config, key, value string) {
	switch strings.ToLower(key) {
	case "datadir":
		cfg.DataDir = value
	case "listen":
		cfg.ListenAddr = value
	case "network":
		cfg.Network = value
	case "loglevel":
		cfg.LogLevel = value
	case "logfile":
		cfg.LogFile = value
	case "backend":
		cfg.Backend = value
	case "pgdsn":
		cfg.PostgresDSN = value
	case "metrics_namespace":
		cfg.MetricsNamespace = value
	case "deployer":
		cfg.Deployer = value
	}
}

// SaveConfig writes cfg to path, creating parent directories as needed.
// The file is written with 0600 permissions since it may carry a DSN.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# SplitPay Configuration\n\n")
	fmt.Fprintf(&b, "datadir = %s\n", cfg.DataDir)
	fmt.Fprintf(&b, "listen = %s\n", cfg.ListenAddr)
	fmt.Fprintf(&b, "network = %s\n", cfg.Network)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "logfile = %s\n", cfg.LogFile)
	fmt.Fprintf(&b, "backend = %s\n", cfg.Backend)
	fmt.Fprintf(&b, "pgdsn = %s\n", cfg.PostgresDSN)
	fmt.Fprintf(&b, "metrics_namespace = %s\n", cfg.MetricsNamespace)
	fmt.Fprintf(&b, "deployer = %s\n", cfg.Deployer)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
