// Package websocket exposes the App over a local WebSocket: RPC requests
// are routed to exported methods by name and host events are pushed to
// every client.
package websocket

// Message kinds.
const (
	KindRequest  = "rpc_request"
	KindResponse = "rpc_response"
	KindEvent    = "event"
)

// RPCRequest is a call from the front end.
type RPCRequest struct {
	ID     string        `json:"id"`     // echoed in the response
	Method string        `json:"method"` // exported App method name
	Params []interface{} `json:"params"` // positional arguments
}

// RPCResponse answers one RPCRequest.
type RPCResponse struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// WSEvent is pushed by the host without a request.
type WSEvent struct {
	Type    string      `json:"type"` // e.g. "agent:response"
	Payload interface{} `json:"payload"`
}

// WSMessage is the envelope for everything on the socket.
type WSMessage struct {
	Kind string `json:"kind"`

	Request  *RPCRequest  `json:"request,omitempty"`
	Response *RPCResponse `json:"response,omitempty"`
	Event    *WSEvent     `json:"event,omitempty"`
}
