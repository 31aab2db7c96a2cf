package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: not found
	Error string `json:"error" example:"not found"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// InstanceStatus summarizes one leased engine for /status.
type InstanceStatus struct {
	// Instance identifier (uuid).
	// example: 0b5e7c1a-3f0e-4c1e-9a7d-2d8e7f6b1c9a
	ID string `json:"id" example:"0b5e7c1a-3f0e-4c1e-9a7d-2d8e7f6b1c9a"`
	// Engine kind.
	// example: leelazero
	Kind string `json:"kind" example:"leelazero"`
	// Process ID of the engine.
	// example: 12345
	PID int `json:"pid" example:"12345"`
	// Lease start (unix seconds).
	// example: 1700000000
	LeasedAt int64 `json:"leased_at_unix" example:"1700000000"`
	// True while the engine is being stopped.
	Releasing bool `json:"releasing,omitempty"`
}

// PoolStatus is the engine pool part of /status.
type PoolStatus struct {
	// Maximum concurrently leased engines in this worker.
	// example: 2
	Capacity int `json:"capacity" example:"2"`
	// Leased engines, including ones being released.
	// example: 1
	Active int `json:"active" example:"1"`
	// Slots reserved by leases whose process is still starting.
	Pending int `json:"pending"`
	// Configured engine kinds.
	// example: ["katago","leela","leelazero"]
	Engines []string `json:"engines"`
	// Leased engines per kind.
	ByKind map[string]int `json:"by_kind"`
	// Leased engines.
	Instances []InstanceStatus `json:"instances"`
}

// EngineCheck reports whether a configured engine can be launched.
type EngineCheck struct {
	Kind      string `json:"kind"`
	Exec      string `json:"exec"`
	Weights   string `json:"weights,omitempty"`
	ExecFound bool   `json:"exec_found"`
	Error     string `json:"error,omitempty"`
}

// EndpointStatus describes one gateway listener.
type EndpointStatus struct {
	// example: play
	Name string `json:"name" example:"play"`
	// example: 127.0.0.1:3301
	Addr string `json:"addr" example:"127.0.0.1:3301"`
	// Open connections on this endpoint.
	Connections int64 `json:"connections"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Process role label.
	// example: deepleela-server-worker
	Role string `json:"role" example:"deepleela-server-worker"`
	// example: 4242
	PID int `json:"pid" example:"4242"`
	// Connected play clients in this worker.
	// example: 3
	OnlineUsers int64            `json:"online_users" example:"3"`
	Pool        PoolStatus       `json:"pool"`
	Endpoints   []EndpointStatus `json:"endpoints"`
	Engines     []EngineCheck    `json:"engines"`
	// Uptime of the worker in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
