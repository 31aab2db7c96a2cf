// Package worker runs one gateway process: it loads the configuration, builds
// the engine pool and the endpoint sessions, and serves until its context is
// canceled.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"deepleelad/internal/config"
	"deepleelad/internal/gateway"
	"deepleelad/internal/httpapi"
	"deepleelad/internal/logging"
	"deepleelad/internal/pool"
	"deepleelad/internal/proctitle"
	"deepleelad/internal/session"
	"deepleelad/internal/supervisor"
	"deepleelad/pkg/types"
)

// Exit statuses returned by Run.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitConfig is EX_CONFIG from sysexits.h.
	ExitConfig = 78
)

const (
	stopAllTimeout   = 10 * time.Second
	adminStopTimeout = 5 * time.Second
	redisPingTimeout = 3 * time.Second
	upstreamRetry    = 5 * time.Second
	limiterPrune     = time.Minute
)

// Options configures Run.
type Options struct {
	ConfigPath string
	// Workers, when positive, overrides the configured worker count.
	Workers int
	// Stderr receives log output; defaults to os.Stderr.
	Stderr io.Writer
}

// Run loads the configuration at opts.ConfigPath and serves until ctx is
// canceled. It returns the process exit status. A missing, unparsable or
// invalid configuration produces exactly one fatal log line and ExitConfig.
func Run(ctx context.Context, opts Options) int {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	boot := logging.Bootstrap(proctitle.Worker, stderr)
	cfg, err := LoadConfig(opts.ConfigPath, opts.Workers)
	if err != nil {
		boot.WithLevel(zerolog.FatalLevel).Err(err).Str("path", opts.ConfigPath).Msg("cannot start without a valid configuration")
		return ExitConfig
	}
	logger, closer, err := logging.New(cfg.Log, proctitle.Worker, stderr)
	if err != nil {
		boot.WithLevel(zerolog.FatalLevel).Err(err).Str("path", opts.ConfigPath).Msg("cannot start without a valid configuration")
		return ExitConfig
	}
	defer closer.Close()

	if slot := os.Getenv(supervisor.WorkerSlotEnv); slot != "" {
		logger = logger.With().Str("slot", slot).Logger()
	}
	if err := proctitle.Set(proctitle.Worker); err != nil {
		logger.Debug().Err(err).Msg("set thread name")
	}
	for _, warning := range cfg.Warnings() {
		logger.Warn().Msg(warning)
	}

	w, err := New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("worker setup failed")
		return ExitFailure
	}
	if err := w.Listen(ctx); err != nil {
		logger.Error().Err(err).Msg("cannot bind endpoints")
		w.Close()
		return ExitFailure
	}
	if err := w.Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		return ExitFailure
	}
	return ExitOK
}

// LoadConfig loads and validates the configuration at path, or at
// config.DefaultPath when path is empty. A positive workers overrides the
// file.
func LoadConfig(path string, workers int) (config.Config, error) {
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Worker is one gateway process.
type Worker struct {
	cfg     config.Config
	log     zerolog.Logger
	started time.Time

	pool    *pool.Manager
	hub     *session.Hub
	rdb     *redis.Client
	limiter *gateway.IPLimiter
	gw      *gateway.Gateway

	admin   *http.Server
	adminLn net.Listener
}

// New builds a worker for a validated configuration. Nothing is bound until
// Listen.
func New(cfg config.Config, logger zerolog.Logger) (*Worker, error) {
	profiles, err := cfg.Profiles()
	if err != nil {
		return nil, err
	}
	w := &Worker{cfg: cfg, log: logger, started: time.Now()}
	w.pool = pool.New(pool.ManagerConfig{
		Capacity: pool.PerWorkerCapacity(cfg.MaxPlayers, cfg.Workers),
		Profiles: profiles,
		Logger:   &logger,
	})
	for _, c := range w.pool.SanityCheck() {
		if c.Error != "" {
			logger.Warn().Str("kind", c.Kind).Str("exec", c.Exec).Str("error", c.Error).Msg("engine not launchable")
		}
	}

	w.hub = session.NewHub(&logger)
	var store session.Store
	if cfg.RedisEnabled() {
		w.rdb = redis.NewClient(&redis.Options{
			Addr: net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(cfg.Redis.Port)),
		})
		store = session.NewRedisStore(w.rdb, 0)
	} else {
		store = session.NewMemoryStore()
	}

	endpoints := []gateway.Endpoint{
		{Name: gateway.EndpointPlay, Host: cfg.Host, Port: cfg.Listen, Handler: session.NewPlay(w.pool), CountOnline: true},
		{Name: gateway.EndpointSpectator, Host: cfg.CGOS.Host, Port: cfg.CGOS.Port, Handler: w.hub},
		{Name: gateway.EndpointReview, Host: cfg.Review.Host, Port: cfg.Review.Port, Handler: session.NewReview(store)},
	}
	if cfg.AnalysisEnabled() {
		endpoints = append(endpoints, gateway.Endpoint{
			Name: gateway.EndpointAnalysis, Host: cfg.Analysis.Host, Port: cfg.Analysis.Port, Handler: session.NewAnalysis(w.pool),
		})
	}
	if cfg.RateLimit.PerSecond > 0 {
		w.limiter = gateway.NewIPLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	}
	w.gw = gateway.New(gateway.Config{
		Endpoints: endpoints,
		// sibling workers share every port
		ReusePort: cfg.Workers > 1,
		Limiter:   w.limiter,
		Logger:    &logger,
	})

	if cfg.AdminEnabled() {
		httpapi.SetLogger(logger)
		w.admin = &http.Server{
			Handler:           httpapi.NewMux(w),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return w, nil
}

// adminAddr is the admin listen address. Each worker slot takes its own
// port, counting up from the configured one.
func (w *Worker) adminAddr() string {
	port := w.cfg.Admin.Port
	if slot, err := strconv.Atoi(os.Getenv(supervisor.WorkerSlotEnv)); err == nil && slot > 0 {
		port += slot
	}
	return net.JoinHostPort(w.cfg.Admin.Host, strconv.Itoa(port))
}

// Listen binds the gateway endpoints and, when enabled, the admin API. On
// error nothing stays bound.
func (w *Worker) Listen(ctx context.Context) error {
	if err := w.gw.Listen(ctx); err != nil {
		return err
	}
	if w.admin != nil {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", w.adminAddr())
		if err != nil {
			w.gw.Close()
			return fmt.Errorf("admin listen: %w", err)
		}
		w.adminLn = ln
	}
	return nil
}

// Close releases what Listen bound and the redis client. Use it only when
// Serve is not going to run.
func (w *Worker) Close() {
	w.gw.Close()
	if w.adminLn != nil {
		_ = w.adminLn.Close()
	}
	if w.rdb != nil {
		_ = w.rdb.Close()
	}
}

// Serve runs the worker until ctx is canceled. On return every leased
// engine has been stopped. The error is non-nil only when an endpoint failed.
func (w *Worker) Serve(ctx context.Context) error {
	bg, stopBG := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		stopBG()
		wg.Wait()
		if w.rdb != nil {
			_ = w.rdb.Close()
		}
	}()

	if w.limiter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.limiter.Run(bg, limiterPrune)
		}()
	}
	if w.rdb != nil {
		pctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		if err := w.rdb.Ping(pctx).Err(); err != nil {
			w.log.Warn().Err(err).Str("addr", w.rdb.Options().Addr).Msg("redis unreachable, reviews and spectator upstream will fail until it is back")
		}
		cancel()
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runUpstream(bg)
		}()
	}
	if w.admin != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.log.Info().Str("addr", w.adminLn.Addr().String()).Msg("admin API listening")
			if err := w.admin.Serve(w.adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				w.log.Error().Err(err).Msg("admin API failed")
			}
		}()
	}

	w.log.Info().Int("capacity", w.pool.Capacity()).Strs("engines", w.pool.Profiles().Kinds()).Msg("worker started")
	err := w.gw.Serve(ctx)

	if w.admin != nil {
		sctx, cancel := context.WithTimeout(context.Background(), adminStopTimeout)
		if serr := w.admin.Shutdown(sctx); serr != nil {
			w.log.Warn().Err(serr).Msg("admin shutdown")
		}
		cancel()
	}
	sctx, cancel := context.WithTimeout(context.Background(), stopAllTimeout)
	w.pool.StopAll(sctx)
	cancel()
	w.log.Info().Msg("worker stopped")
	return err
}

// runUpstream keeps the spectator hub subscribed to redis, resubscribing
// after failures until ctx is canceled.
func (w *Worker) runUpstream(ctx context.Context) {
	for {
		err := w.hub.RunRedis(ctx, w.rdb, session.SpectatorChannel)
		if ctx.Err() != nil {
			return
		}
		w.log.Warn().Err(err).Dur("retry_in", upstreamRetry).Msg("spectator upstream lost")
		select {
		case <-ctx.Done():
			return
		case <-time.After(upstreamRetry):
		}
	}
}

// Ready reports whether the gateway is accepting connections.
func (w *Worker) Ready() bool { return w.gw.Ready() }

// Status reports the worker state for the admin API.
func (w *Worker) Status() types.StatusResponse {
	now := time.Now()
	return types.StatusResponse{
		Role:           proctitle.Worker,
		PID:            os.Getpid(),
		OnlineUsers:    w.gw.OnlineUsers(),
		Pool:           w.pool.Snapshot(),
		Endpoints:      w.gw.Status(),
		Engines:        w.pool.SanityCheck(),
		UptimeSeconds:  int64(now.Sub(w.started).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
}

// Addr returns the bound address of the named endpoint, or "" if it is not
// listening.
func (w *Worker) Addr(endpoint string) string { return w.gw.Addr(endpoint) }

// AdminAddr returns the bound admin API address, or "" when disabled.
func (w *Worker) AdminAddr() string {
	if w.adminLn == nil {
		return ""
	}
	return w.adminLn.Addr().String()
}
