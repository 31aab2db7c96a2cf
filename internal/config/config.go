// Package config loads the server configuration file.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"deepleelad/internal/common/fsutil"
	"deepleelad/internal/engine"
)

// Default ports and hosts.
const (
	DefaultPlayPort   = 3301
	DefaultCGOSPort   = 3302
	DefaultReviewPort = 3303
	DefaultRedisPort  = 6379
	DefaultHost       = "localhost"
)

// EngineConfig is one engine kind's launch parameters.
type EngineConfig struct {
	Exec     string   `json:"exec" yaml:"exec" toml:"exec"`
	Weights  string   `json:"weights" yaml:"weights" toml:"weights"`
	Playouts int      `json:"playouts" yaml:"playouts" toml:"playouts"`
	Args     []string `json:"args" yaml:"args" toml:"args"`
}

// HostPort is a listen or dial address. Port 0 means unset.
type HostPort struct {
	Host string `json:"host" yaml:"host" toml:"host"`
	Port int    `json:"port" yaml:"port" toml:"port"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
	// File, when set, receives a copy of the log with size-based rotation.
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress" toml:"compress"`
}

// RateLimitConfig limits new connections per remote IP. PerSecond 0
// disables the limit.
type RateLimitConfig struct {
	PerSecond float64 `json:"per_second" yaml:"per_second" toml:"per_second"`
	Burst     int     `json:"burst" yaml:"burst" toml:"burst"`
}

// RestartConfig is the worker crash-loop policy. Burst 0 keeps the default
// of restarting immediately every time.
type RestartConfig struct {
	Burst int `json:"burst" yaml:"burst" toml:"burst"`
	// Window in seconds.
	Window int `json:"window" yaml:"window" toml:"window"`
	// BaseDelay and MaxDelay in milliseconds.
	BaseDelay int `json:"base_delay" yaml:"base_delay" toml:"base_delay"`
	MaxDelay  int `json:"max_delay" yaml:"max_delay" toml:"max_delay"`
}

// WindowDuration returns Window as a duration.
func (r RestartConfig) WindowDuration() time.Duration { return time.Duration(r.Window) * time.Second }

// BaseDelayDuration returns BaseDelay as a duration.
func (r RestartConfig) BaseDelayDuration() time.Duration {
	return time.Duration(r.BaseDelay) * time.Millisecond
}

// MaxDelayDuration returns MaxDelay as a duration.
func (r RestartConfig) MaxDelayDuration() time.Duration {
	return time.Duration(r.MaxDelay) * time.Millisecond
}

// Config holds runtime parameters for the service.
type Config struct {
	// Listen is the play endpoint port; Host its bind address.
	Listen     int    `json:"listen" yaml:"listen" toml:"listen"`
	Host       string `json:"host" yaml:"host" toml:"host"`
	MaxPlayers int    `json:"max_players" yaml:"max_players" toml:"max_players"`
	Workers    int    `json:"workers" yaml:"workers" toml:"workers"`

	Leela     *EngineConfig           `json:"leela" yaml:"leela" toml:"leela"`
	LeelaZero *EngineConfig           `json:"leelazero" yaml:"leelazero" toml:"leelazero"`
	KataGo    *EngineConfig           `json:"katago" yaml:"katago" toml:"katago"`
	Engines   map[string]EngineConfig `json:"engines" yaml:"engines" toml:"engines"`

	Redis    HostPort `json:"redis" yaml:"redis" toml:"redis"`
	CGOS     HostPort `json:"cgos" yaml:"cgos" toml:"cgos"`
	Review   HostPort `json:"review" yaml:"review" toml:"review"`
	Analysis HostPort `json:"analysis" yaml:"analysis" toml:"analysis"`
	Admin    HostPort `json:"admin" yaml:"admin" toml:"admin"`

	Log       LogConfig       `json:"log" yaml:"log" toml:"log"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit" toml:"rate_limit"`
	Restart   RestartConfig   `json:"restart" yaml:"restart" toml:"restart"`
}

// ApplyDefaults fills unset fields. Analysis and admin have no default port
// and stay disabled unless configured; redis stays disabled without a host.
func (c *Config) ApplyDefaults() {
	if c.Listen == 0 {
		c.Listen = DefaultPlayPort
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.MaxPlayers == 0 {
		c.MaxPlayers = runtime.NumCPU()
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.CGOS.Port == 0 {
		c.CGOS.Port = DefaultCGOSPort
	}
	if c.Review.Port == 0 {
		c.Review.Port = DefaultReviewPort
	}
	for _, hp := range []*HostPort{&c.CGOS, &c.Review, &c.Analysis, &c.Admin} {
		if hp.Host == "" {
			hp.Host = DefaultHost
		}
	}
	if c.Redis.Host != "" && c.Redis.Port == 0 {
		c.Redis.Port = DefaultRedisPort
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// RedisEnabled reports whether a redis host is configured.
func (c Config) RedisEnabled() bool { return c.Redis.Host != "" }

// AnalysisEnabled reports whether the analysis endpoint has a port.
func (c Config) AnalysisEnabled() bool { return c.Analysis.Port != 0 }

// AdminEnabled reports whether the admin API has a port.
func (c Config) AdminEnabled() bool { return c.Admin.Port != 0 }

// Validate checks a defaulted configuration.
func (c Config) Validate() error {
	var errs []error
	if c.MaxPlayers < 0 {
		errs = append(errs, fmt.Errorf("max_players must not be negative"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1"))
	}
	ports := map[int]string{}
	check := func(name string, port int) {
		if port == 0 {
			return
		}
		if port < 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s port %d out of range", name, port))
			return
		}
		if other, dup := ports[port]; dup {
			errs = append(errs, fmt.Errorf("%s and %s both use port %d", other, name, port))
			return
		}
		ports[port] = name
	}
	check("listen", c.Listen)
	check("cgos", c.CGOS.Port)
	check("review", c.Review.Port)
	check("analysis", c.Analysis.Port)
	check("admin", c.Admin.Port)
	for kind, ec := range c.engineConfigs() {
		if ec.Exec == "" {
			errs = append(errs, fmt.Errorf("engine %s: exec is required", kind))
		}
		if ec.Playouts < 0 {
			errs = append(errs, fmt.Errorf("engine %s: playouts must not be negative", kind))
		}
	}
	if c.RateLimit.PerSecond < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.per_second must not be negative"))
	}
	if c.Restart.Burst < 0 || c.Restart.Window < 0 {
		errs = append(errs, fmt.Errorf("restart burst and window must not be negative"))
	}
	if c.Restart.Burst > 0 && c.Restart.Window == 0 {
		errs = append(errs, fmt.Errorf("restart.window is required when restart.burst is set"))
	}
	return errors.Join(errs...)
}

// Warnings lists configuration choices that start fine but are probably
// unintended.
func (c Config) Warnings() []string {
	var out []string
	if !c.AnalysisEnabled() {
		out = append(out, "analysis port not configured, analysis endpoint disabled")
	}
	if !c.RedisEnabled() {
		out = append(out, "redis not configured, reviews are kept in this worker's memory (capped, oldest evicted first) and spectator upstream is off")
	}
	if c.Workers > 0 && c.MaxPlayers/c.Workers == 0 {
		out = append(out, fmt.Sprintf("max_players %d is below workers %d, every lease will be refused", c.MaxPlayers, c.Workers))
	}
	if len(c.engineConfigs()) == 0 {
		out = append(out, "no engines configured, every lease will be refused")
	}
	return out
}

func (c Config) engineConfigs() map[string]EngineConfig {
	out := make(map[string]EngineConfig, len(c.Engines)+3)
	for kind, ec := range c.Engines {
		out[kind] = ec
	}
	// the named sections win over an engines entry of the same kind
	named := map[string]*EngineConfig{
		engine.KindLeela:     c.Leela,
		engine.KindLeelaZero: c.LeelaZero,
		engine.KindKataGo:    c.KataGo,
	}
	for kind, ec := range named {
		if ec != nil {
			out[kind] = *ec
		}
	}
	return out
}

// Profiles builds the engine profile table, expanding a leading ~ in paths.
func (c Config) Profiles() (engine.Table, error) {
	ecs := c.engineConfigs()
	kinds := make([]string, 0, len(ecs))
	for k := range ecs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	t := make(engine.Table, len(ecs))
	for _, kind := range kinds {
		ec := ecs[kind]
		exec, err := fsutil.ExpandHome(ec.Exec)
		if err != nil {
			return nil, fmt.Errorf("engine %s exec: %w", kind, err)
		}
		weights, err := fsutil.ExpandHome(ec.Weights)
		if err != nil {
			return nil, fmt.Errorf("engine %s weights: %w", kind, err)
		}
		t[kind] = engine.Profile{
			Kind:      kind,
			Exec:      exec,
			Weights:   weights,
			Playouts:  ec.Playouts,
			ExtraArgs: append([]string(nil), ec.Args...),
		}
	}
	return t, nil
}
