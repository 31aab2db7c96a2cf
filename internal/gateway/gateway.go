// Package gateway accepts WebSocket connections on a fixed set of endpoints
// and hands each one to its endpoint's handler in its own goroutine.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"deepleelad/pkg/types"
)

const defaultShutdownTimeout = 10 * time.Second

// Config configures a Gateway.
type Config struct {
	Endpoints []Endpoint
	// ReusePort sets SO_REUSEPORT so sibling workers can share each port.
	ReusePort bool
	// Limiter, when set, caps new connections per remote IP.
	Limiter *IPLimiter
	// Online is incremented and decremented by endpoints with CountOnline.
	Online *Counter
	Logger *zerolog.Logger
	// ShutdownTimeout bounds how long Serve waits for open connections to
	// finish after its context is canceled.
	ShutdownTimeout time.Duration
}

type endpointServer struct {
	ep    Endpoint
	ln    net.Listener
	srv   *http.Server
	conns atomic.Int64
}

// Gateway owns the endpoint listeners of one worker.
type Gateway struct {
	endpoints       []Endpoint
	reusePort       bool
	limiter         *IPLimiter
	online          *Counter
	log             zerolog.Logger
	shutdownTimeout time.Duration
	upgrader        websocket.Upgrader

	servers []*endpointServer
	ready   atomic.Bool

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// New returns a Gateway for cfg. Nothing is bound until Listen or Serve.
func New(cfg Config) *Gateway {
	g := &Gateway{
		endpoints:       cfg.Endpoints,
		reusePort:       cfg.ReusePort,
		limiter:         cfg.Limiter,
		online:          cfg.Online,
		log:             zerolog.Nop(),
		shutdownTimeout: cfg.ShutdownTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// browser clients are served from other origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if cfg.Logger != nil {
		g.log = cfg.Logger.With().Str("component", "gateway").Logger()
	}
	if g.online == nil {
		g.online = &Counter{}
	}
	if g.shutdownTimeout <= 0 {
		g.shutdownTimeout = defaultShutdownTimeout
	}
	if g.reusePort && !reusePortSupported {
		g.log.Warn().Msg("SO_REUSEPORT not supported on this platform, workers cannot share ports")
		g.reusePort = false
	}
	return g
}

// Listen binds every endpoint. If any bind fails the ones already bound are
// closed and the error is returned, so a worker never serves a partial set.
func (g *Gateway) Listen(ctx context.Context) error {
	if g.servers != nil {
		return errors.New("gateway: already listening")
	}
	lc := listenConfig(g.reusePort)
	servers := make([]*endpointServer, 0, len(g.endpoints))
	for _, ep := range g.endpoints {
		if ep.Handler == nil {
			closeAll(servers)
			return fmt.Errorf("gateway: endpoint %s has no handler", ep.Name)
		}
		ln, err := lc.Listen(ctx, "tcp", ep.Addr())
		if err != nil {
			closeAll(servers)
			return fmt.Errorf("gateway: listen %s on %s: %w", ep.Name, ep.Addr(), err)
		}
		servers = append(servers, &endpointServer{ep: ep, ln: ln})
	}
	g.servers = servers
	return nil
}

// Close unbinds endpoints bound by Listen when Serve is not going to run.
// Serve closes its own listeners on return.
func (g *Gateway) Close() {
	if g.ready.Load() {
		return
	}
	closeAll(g.servers)
}

func closeAll(servers []*endpointServer) {
	for _, es := range servers {
		_ = es.ln.Close()
	}
}

// Serve accepts connections on every endpoint until ctx is canceled, then
// stops accepting, cancels open sessions and waits for them to return.
func (g *Gateway) Serve(ctx context.Context) error {
	if g.servers == nil {
		if err := g.Listen(ctx); err != nil {
			return err
		}
	}
	errCh := make(chan error, len(g.servers))
	for _, es := range g.servers {
		es.srv = &http.Server{
			Handler:           g.router(ctx, es),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		g.log.Info().Str("endpoint", es.ep.Name).Str("addr", es.ln.Addr().String()).Msg("endpoint listening")
		go func(es *endpointServer) {
			if err := es.srv.Serve(es.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("gateway: serve %s: %w", es.ep.Name, err)
			}
		}(es)
	}
	g.ready.Store(true)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		g.log.Error().Err(serveErr).Msg("endpoint failed")
	}
	g.shutdown()
	return serveErr
}

func (g *Gateway) shutdown() {
	g.ready.Store(false)
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	sctx, cancel := context.WithTimeout(context.Background(), g.shutdownTimeout)
	defer cancel()
	for _, es := range g.servers {
		if err := es.srv.Shutdown(sctx); err != nil {
			g.log.Warn().Err(err).Str("endpoint", es.ep.Name).Msg("endpoint shutdown")
		}
	}
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-sctx.Done():
		g.log.Warn().Msg("connections still open after shutdown timeout")
	}
	g.log.Info().Msg("gateway stopped")
}

func (g *Gateway) router(ctx context.Context, es *endpointServer) http.Handler {
	r := chi.NewRouter()
	r.HandleFunc("/*", func(w http.ResponseWriter, req *http.Request) {
		g.accept(ctx, es, w, req)
	})
	return r
}

func (g *Gateway) accept(ctx context.Context, es *endpointServer, w http.ResponseWriter, r *http.Request) {
	name := es.ep.Name
	ip := remoteIP(r)
	if g.limiter != nil && !g.limiter.Allow(ip) {
		connsRejected.WithLabelValues(name, "rate_limited").Inc()
		g.log.Debug().Str("endpoint", name).Str("remote", ip).Msg("connection rate limited")
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}
	if !g.track() {
		connsRejected.WithLabelValues(name, "shutting_down").Inc()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer g.wg.Done()
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		connsRejected.WithLabelValues(name, "upgrade").Inc()
		g.log.Debug().Err(err).Str("endpoint", name).Str("remote", ip).Msg("upgrade failed")
		return
	}
	g.serveConn(ctx, es, conn, ip)
}

func (g *Gateway) track() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.wg.Add(1)
	return true
}

// serveConn runs the endpoint handler. A panic is contained to this
// connection: it is logged and the connection closed.
func (g *Gateway) serveConn(parent context.Context, es *endpointServer, conn *websocket.Conn, remote string) {
	name := es.ep.Name
	log := g.log.With().Str("endpoint", name).Str("conn_id", uuid.NewString()).Str("remote", remote).Logger()
	ctx, cancel := context.WithCancel(log.WithContext(parent))
	context.AfterFunc(ctx, func() { _ = conn.Close() })

	es.conns.Add(1)
	connsAccepted.WithLabelValues(name).Inc()
	connsActive.WithLabelValues(name).Inc()
	if es.ep.CountOnline {
		g.online.Inc()
	}
	log.Debug().Msg("connection accepted")

	defer func() {
		if rec := recover(); rec != nil {
			handlerPanics.WithLabelValues(name).Inc()
			log.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("connection handler panicked")
		}
		cancel()
		if es.ep.CountOnline {
			g.online.Dec()
		}
		es.conns.Add(-1)
		connsActive.WithLabelValues(name).Dec()
		log.Debug().Msg("connection closed")
	}()
	es.ep.Handler.ServeConn(ctx, conn)
}

// remoteIP is the socket peer address. Forwarding headers are client
// controlled and must not key the accept limiter.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Ready reports whether every endpoint is accepting connections.
func (g *Gateway) Ready() bool { return g.ready.Load() }

// OnlineUsers returns the online user counter value.
func (g *Gateway) OnlineUsers() int64 { return g.online.Value() }

// Addr returns the bound address of the named endpoint, or "" when it is not
// configured or not yet bound.
func (g *Gateway) Addr(name string) string {
	for _, es := range g.servers {
		if es.ep.Name == name {
			return es.ln.Addr().String()
		}
	}
	return ""
}

// Status describes each bound endpoint.
func (g *Gateway) Status() []types.EndpointStatus {
	out := make([]types.EndpointStatus, 0, len(g.servers))
	for _, es := range g.servers {
		out = append(out, types.EndpointStatus{
			Name:        es.ep.Name,
			Addr:        es.ln.Addr().String(),
			Connections: es.conns.Load(),
		})
	}
	return out
}
