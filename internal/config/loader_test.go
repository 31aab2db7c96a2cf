package config

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"deepleelad/internal/engine"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "config.json", `{
		"listen": 4301, "host": "0.0.0.0", "max_players": 8, "workers": 4,
		"leela": {"exec": "/opt/leela", "playouts": 500},
		"leelazero": {"exec": "/opt/lz", "weights": "/w/lz.gz"},
		"redis": {"host": "redis"},
		"cgos": {"host": "0.0.0.0", "port": 4302},
		"review": {"port": 4303},
		"analysis": {"host": "0.0.0.0", "port": 4304}
	}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != 4301 || cfg.Host != "0.0.0.0" || cfg.MaxPlayers != 8 || cfg.Workers != 4 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Leela == nil || cfg.Leela.Exec != "/opt/leela" || cfg.Leela.Playouts != 500 {
		t.Fatalf("leela: %+v", cfg.Leela)
	}
	if cfg.Redis.Port != DefaultRedisPort || !cfg.RedisEnabled() {
		t.Fatalf("redis: %+v", cfg.Redis)
	}
	if cfg.Review.Host != DefaultHost || cfg.Review.Port != 4303 {
		t.Fatalf("review: %+v", cfg.Review)
	}
	if !cfg.AnalysisEnabled() || cfg.AdminEnabled() {
		t.Fatalf("endpoint switches wrong: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "config.yaml", "listen: 5301\nkatago:\n  exec: /opt/katago\n  weights: /w/kata.bin.gz\n  playouts: 800\nlog:\n  level: debug\n  format: console\nrestart:\n  burst: 5\n  window: 60\n  base_delay: 500\n  max_delay: 10000\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != 5301 || cfg.KataGo == nil || cfg.KataGo.Playouts != 800 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Fatalf("log: %+v", cfg.Log)
	}
	r := cfg.Restart
	if r.WindowDuration().Seconds() != 60 || r.BaseDelayDuration().Milliseconds() != 500 || r.MaxDelayDuration().Seconds() != 10 {
		t.Fatalf("restart: %+v", r)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "config.toml", "listen = 6301\nworkers = 2\n[engines.gnugo]\nexec = \"/usr/games/gnugo\"\nargs = [\"--mode\", \"gtp\"]\n[rate_limit]\nper_second = 2.5\nburst = 5\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != 6301 || cfg.Workers != 2 || cfg.RateLimit.PerSecond != 2.5 || cfg.RateLimit.Burst != 5 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if got := cfg.Engines["gnugo"].Args; !reflect.DeepEqual(got, []string{"--mode", "gtp"}) {
		t.Fatalf("engines: %+v", cfg.Engines)
	}
}

func TestDefaults(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "config.json", `{}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != DefaultPlayPort || cfg.Host != DefaultHost || cfg.CGOS.Port != DefaultCGOSPort || cfg.Review.Port != DefaultReviewPort {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxPlayers != runtime.NumCPU() || cfg.Workers != 1 {
		t.Fatalf("capacity defaults: max_players=%d workers=%d", cfg.MaxPlayers, cfg.Workers)
	}
	if cfg.AnalysisEnabled() || cfg.AdminEnabled() || cfg.RedisEnabled() {
		t.Fatalf("optional endpoints enabled by default: %+v", cfg)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Fatalf("log defaults: %+v", cfg.Log)
	}
	if len(cfg.Warnings()) == 0 {
		t.Fatalf("expected warnings for an empty configuration")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestProfiles(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	cfg := Config{
		Leela:     &EngineConfig{Exec: "~/bin/leela", Weights: "/w/leela.txt"},
		LeelaZero: &EngineConfig{Exec: "/bin/lz", Weights: "~/w/lz.gz", Playouts: 3000},
		Engines: map[string]EngineConfig{
			"leela": {Exec: "/ignored"},
			"gnugo": {Exec: "/usr/games/gnugo", Args: []string{"--mode", "gtp"}},
		},
	}
	tbl, err := cfg.Profiles()
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	if got := tbl.Kinds(); !reflect.DeepEqual(got, []string{"gnugo", "leela", "leelazero"}) {
		t.Fatalf("kinds=%v", got)
	}
	if tbl[engine.KindLeela].Exec != filepath.Join(home, "bin/leela") {
		t.Fatalf("leela exec not expanded: %s", tbl[engine.KindLeela].Exec)
	}
	lz := tbl[engine.KindLeelaZero]
	if lz.Weights != filepath.Join(home, "w/lz.gz") || lz.Playouts != 3000 {
		t.Fatalf("leelazero: %+v", lz)
	}
	// each kind keeps its own weights
	if args := engine.Args(lz); args[len(args)-1] != lz.Weights {
		t.Fatalf("leelazero args %v", args)
	}
	if !reflect.DeepEqual(tbl["gnugo"].ExtraArgs, []string{"--mode", "gtp"}) {
		t.Fatalf("gnugo: %+v", tbl["gnugo"])
	}
}
