package gateway

import (
	"context"
	"net"
	"strconv"

	"github.com/gorilla/websocket"
)

// Endpoint names.
const (
	EndpointPlay      = "play"
	EndpointSpectator = "spectator"
	EndpointReview    = "review"
	EndpointAnalysis  = "analysis"
)

// Handler serves one upgraded connection. ServeConn owns conn until it
// returns; ctx is canceled when the gateway shuts down and carries the
// connection's logger (zerolog.Ctx).
type Handler interface {
	ServeConn(ctx context.Context, conn *websocket.Conn)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn *websocket.Conn)

func (f HandlerFunc) ServeConn(ctx context.Context, conn *websocket.Conn) { f(ctx, conn) }

// Endpoint is one independently addressable listener.
type Endpoint struct {
	Name    string
	Host    string
	Port    int
	Handler Handler
	// CountOnline makes the endpoint maintain the online user counter.
	CountOnline bool
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
