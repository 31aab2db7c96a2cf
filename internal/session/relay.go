// Package session implements the per-connection protocols served by the
// gateway endpoints: engine relays for play and analysis, the spectator
// broadcast hub, and game review storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"deepleelad/internal/engine"
	"deepleelad/internal/gtp"
	"deepleelad/internal/pool"
	"deepleelad/pkg/types"
)

const (
	writeTimeout          = 10 * time.Second
	defaultCommandTimeout = 5 * time.Minute
	maxFrameBytes         = 64 * 1024
)

// Leaser is the part of the engine pool a relay needs.
type Leaser interface {
	Lease(ctx context.Context, kind string) (*pool.Instance, error)
	Release(ctx context.Context, inst *pool.Instance) error
}

// Relay forwards GTP commands from one client to one leased engine.
//
// The engine is leased on the first frame: its Engine field picks the kind,
// falling back to the relay's default. A refused lease is reported to the
// client and the connection stays open so the client can retry. The
// engine is released when the client sends "quit" or disconnects.
type Relay struct {
	pool           Leaser
	defaultKind    string
	commandTimeout time.Duration
}

// RelayOption customizes a Relay.
type RelayOption func(*Relay)

// WithCommandTimeout bounds how long a single engine command may run.
func WithCommandTimeout(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.commandTimeout = d
		}
	}
}

// NewRelay returns a relay that leases defaultKind when the client does not
// name an engine.
func NewRelay(p Leaser, defaultKind string, opts ...RelayOption) *Relay {
	r := &Relay{pool: p, defaultKind: defaultKind, commandTimeout: defaultCommandTimeout}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewPlay returns the play endpoint relay; clients get leela unless they ask
// for another engine.
func NewPlay(p Leaser, opts ...RelayOption) *Relay {
	return NewRelay(p, engine.KindLeela, opts...)
}

// NewAnalysis returns the analysis endpoint relay, defaulting to leelazero.
func NewAnalysis(p Leaser, opts ...RelayOption) *Relay {
	return NewRelay(p, engine.KindLeelaZero, opts...)
}

type relaySession struct {
	*Relay
	conn *websocket.Conn
	log  *zerolog.Logger
	inst *pool.Instance
}

// ServeConn runs the relay until the client disconnects or ctx is canceled.
// A disconnect cancels the command in flight and releases the engine
// without waiting for the engine to answer.
func (r *Relay) ServeConn(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s := &relaySession{Relay: r, conn: conn, log: zerolog.Ctx(ctx)}
	conn.SetReadLimit(maxFrameBytes)
	defer s.release(ctx)

	frames := make(chan []byte)
	go s.read(ctx, cancel, frames)
	for {
		var data []byte
		select {
		case <-ctx.Done():
			return
		case data = <-frames:
		}
		var req types.EngineRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if !s.reply(types.EngineResponse{Error: "invalid request"}) {
				return
			}
			continue
		}
		if !s.handle(ctx, req) {
			return
		}
	}
}

// read hands client frames to ServeConn one at a time and cancels the
// session when the connection fails. It is the connection's only reader.
func (s *relaySession) read(ctx context.Context, cancel context.CancelFunc, frames chan<- []byte) {
	defer cancel()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				s.log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

// handle processes one request and reports whether the session continues.
func (s *relaySession) handle(ctx context.Context, req types.EngineRequest) bool {
	if s.inst == nil {
		kind := req.Engine
		if kind == "" {
			kind = s.defaultKind
		}
		inst, err := s.pool.Lease(ctx, kind)
		if err != nil {
			reason, _ := pool.ReasonOf(err)
			return s.reply(types.EngineResponse{
				ID:     req.ID,
				Engine: kind,
				Error:  pool.UserMessage(err),
				Reason: string(reason),
			})
		}
		s.inst = inst
		s.log.Info().Str("kind", kind).Str("instance", inst.ID).Msg("engine attached")
		if strings.TrimSpace(req.Command) == "" {
			return s.reply(types.EngineResponse{ID: req.ID, OK: true, Engine: kind})
		}
	} else if req.Engine != "" && req.Engine != s.inst.Kind {
		return s.reply(types.EngineResponse{ID: req.ID, Engine: s.inst.Kind, Error: "engine already selected"})
	}

	cmd := strings.TrimSpace(req.Command)
	if cmd == "" {
		return s.reply(types.EngineResponse{ID: req.ID, OK: true, Engine: s.inst.Kind})
	}
	kind := s.inst.Kind
	if isQuit(cmd) {
		s.release(ctx)
		return s.reply(types.EngineResponse{ID: req.ID, OK: true, Engine: kind})
	}

	cctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	resp, err := s.inst.Send(cctx, cmd)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.log.Warn().Err(err).Str("kind", kind).Str("command", cmd).Msg("engine command failed")
		if errors.Is(err, gtp.ErrExited) {
			s.release(ctx)
			return s.reply(types.EngineResponse{ID: req.ID, Engine: kind, Error: "engine exited"})
		}
		return s.reply(types.EngineResponse{ID: req.ID, Engine: kind, Error: "engine command failed"})
	}
	out := types.EngineResponse{ID: req.ID, OK: !resp.Error, Engine: kind}
	if resp.Error {
		out.Error = resp.Content
	} else {
		out.Result = resp.Content
	}
	return s.reply(out)
}

func isQuit(cmd string) bool {
	f := strings.Fields(cmd)
	return len(f) == 1 && f[0] == "quit"
}

func (s *relaySession) release(ctx context.Context) {
	if s.inst == nil {
		return
	}
	inst := s.inst
	s.inst = nil
	// the connection context is usually canceled by now
	if err := s.pool.Release(context.WithoutCancel(ctx), inst); err != nil {
		s.log.Warn().Err(err).Str("instance", inst.ID).Msg("engine release failed")
		return
	}
	s.log.Info().Str("kind", inst.Kind).Str("instance", inst.ID).Msg("engine detached")
}

func (s *relaySession) reply(resp types.EngineResponse) bool {
	return writeJSON(s.conn, s.log, resp)
}

// writeJSON writes one text frame and reports whether the write succeeded.
func writeJSON(conn *websocket.Conn, log *zerolog.Logger, v any) bool {
	_ = conn.SetWriteDeadline(deadline())
	if err := conn.WriteJSON(v); err != nil {
		log.Debug().Err(err).Msg("write failed")
		return false
	}
	return true
}

func deadline() time.Time { return time.Now().Add(writeTimeout) }
