// Package config resolves run settings from defaults, an optional JSON file,
// STMTRUNNER_* environment variables and command-line flags, in that order.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dan-strohschein/stmtrunner/logger"
	"github.com/dan-strohschein/stmtrunner/sink"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "STMTRUNNER_"

// Config holds everything one run needs.
type Config struct {
	Address    string        `json:"address"`
	Username   string        `json:"username"`
	Password   string        `json:"password"`
	Namespace  string        `json:"namespace"`
	Database   string        `json:"database"`
	File       string        `json:"file"`
	ErrorLog   string        `json:"errorLog"`
	ReplayFile string        `json:"replayFile"`
	FlushEvery int           `json:"flushEvery"`
	Timeout    time.Duration `json:"-"`
	LogLevel   string        `json:"logLevel"`
	DryRun     bool          `json:"dryRun"`

	// ConfigPath is the JSON file the settings were layered from, if any.
	ConfigPath string `json:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Address:    "localhost:8654",
		Username:   "root",
		Password:   "root",
		Namespace:  "job-seek",
		Database:   "development",
		File:       "rc.surql",
		ErrorLog:   sink.DefaultErrorLog,
		ReplayFile: sink.DefaultReplayFile,
		FlushEvery: sink.DefaultFlushEvery,
		LogLevel:   "INFO",
	}
}

// fileConfig mirrors Config for decoding; Timeout is a duration string.
type fileConfig struct {
	Config
	Timeout string `json:"timeout"`
}

// LoadFile overlays the fields present in a JSON file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	fc := fileConfig{Config: *c}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	timeout := c.Timeout
	if fc.Timeout != "" {
		timeout, err = time.ParseDuration(fc.Timeout)
		if err != nil {
			return fmt.Errorf("parse config %s: timeout: %w", path, err)
		}
	}

	*c = fc.Config
	c.Timeout = timeout
	c.ConfigPath = path
	return nil
}

// ApplyEnv overlays STMTRUNNER_* variables found through lookup onto c.
// Pass os.LookupEnv in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ADDRESS":     &c.Address,
		"USERNAME":    &c.Username,
		"PASSWORD":    &c.Password,
		"NAMESPACE":   &c.Namespace,
		"DATABASE":    &c.Database,
		"FILE":        &c.File,
		"ERROR_LOG":   &c.ErrorLog,
		"REPLAY_FILE": &c.ReplayFile,
		"LOG_LEVEL":   &c.LogLevel,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "FLUSH_EVERY"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sFLUSH_EVERY: %w", EnvPrefix, err)
		}
		c.FlushEvery = n
	}
	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
		c.Timeout = d
	}
	return nil
}

// RegisterFlags binds c to fs. Flag defaults are the current values of c,
// so call it after LoadFile and ApplyEnv and flags win when set.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	stringFlag(fs, &c.Address, "address", "a", "store address (host:port, http(s)://, syndrdb://, postgres://, sqlite://)")
	stringFlag(fs, &c.Username, "username", "u", "username")
	stringFlag(fs, &c.Password, "password", "p", "password")
	stringFlag(fs, &c.Namespace, "namespace", "n", "namespace")
	stringFlag(fs, &c.Database, "database", "d", "database")
	stringFlag(fs, &c.File, "file", "f", "script to run")

	fs.StringVar(&c.ErrorLog, "error-log", c.ErrorLog, "error log path")
	fs.StringVar(&c.ReplayFile, "replay-file", c.ReplayFile, "replay script path")
	fs.IntVar(&c.FlushEvery, "flush-every", c.FlushEvery, "write failures to disk every N commands")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "per-statement timeout (0 for none)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (DEBUG, INFO, WARN, ERROR)")
	fs.BoolVar(&c.DryRun, "dry-run", c.DryRun, "classify and count statements without executing them")
}

func stringFlag(fs *flag.FlagSet, dst *string, name, short, usage string) {
	fs.StringVar(dst, name, *dst, usage)
	fs.StringVar(dst, short, *dst, usage+" (shorthand)")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Address) == "" && !c.DryRun {
		errs = append(errs, errors.New("address is required"))
	}
	if strings.TrimSpace(c.File) == "" {
		errs = append(errs, errors.New("file is required"))
	}
	if c.ErrorLog == "" || c.ReplayFile == "" {
		errs = append(errs, errors.New("error log and replay file paths are required"))
	} else if filepath.Clean(c.ErrorLog) == filepath.Clean(c.ReplayFile) {
		errs = append(errs, fmt.Errorf("error log and replay file must differ (both %q)", c.ErrorLog))
	}
	if c.FlushEvery < 0 {
		errs = append(errs, fmt.Errorf("flush-every must not be negative, got %d", c.FlushEvery))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if !logger.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}

	return errors.Join(errs...)
}

// ConfigPathFromArgs finds -config in args (or STMTRUNNER_CONFIG) before the
// full flag set is registered, since the file must be loaded first.
func ConfigPathFromArgs(args []string, lookup func(string) (string, bool)) string {
	path, _ := lookup(EnvPrefix + "CONFIG")
	for i := 0; i < len(args); i++ {
		arg := strings.TrimLeft(args[i], "-")
		if arg == args[i] {
			continue
		}
		switch {
		case arg == "config" && i+1 < len(args):
			path = args[i+1]
			i++
		case strings.HasPrefix(arg, "config="):
			path = strings.TrimPrefix(arg, "config=")
		}
	}
	return path
}

// Load resolves the full configuration for args (without the program name).
func Load(fs *flag.FlagSet, args []string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	path := ConfigPathFromArgs(args, lookup)
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	cfg.RegisterFlags(fs)
	fs.String("config", path, "JSON config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	return cfg, nil
}
