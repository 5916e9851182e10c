// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the round handler.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided auth token was invalid or expired.
	UnknownPlayerError    = 3002 // Token refers to a player the gate has no record of.
)
