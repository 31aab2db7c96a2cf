package types

// EngineRequest is a client frame on the play and analysis endpoints.
// The first frame that names an Engine (or the first Command) leases an
// engine; Command frames are relayed to it verbatim.
type EngineRequest struct {
	// Client-chosen correlation id echoed in the response.
	ID int `json:"id"`
	// Engine kind to lease; empty means the endpoint default.
	// example: leelazero
	Engine string `json:"engine,omitempty"`
	// One GTP command line.
	// example: genmove b
	Command string `json:"command,omitempty"`
}

// EngineResponse answers an EngineRequest.
type EngineResponse struct {
	ID int  `json:"id"`
	OK bool `json:"ok"`
	// Engine kind serving this session.
	Engine string `json:"engine,omitempty"`
	// GTP response content.
	// example: D4
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	// Machine-readable rejection reason (capacity_exhausted, unknown_engine, ...).
	Reason string `json:"reason,omitempty"`
}

// ReviewRequest is a client frame on the review endpoint.
type ReviewRequest struct {
	// save | load
	Op  string `json:"op"`
	ID  string `json:"id,omitempty"`
	SGF string `json:"sgf,omitempty"`
}

// ReviewResponse answers a ReviewRequest.
type ReviewResponse struct {
	Op    string `json:"op"`
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	SGF   string `json:"sgf,omitempty"`
	Error string `json:"error,omitempty"`
}
