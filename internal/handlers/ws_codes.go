// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room gateway. These provide more
// specific reasons for closure than the standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided auth token was invalid or expired.
	InvalidRoomCodeError  = 3003 // Target room code in the WS URL does not exist.
	RoomUnavailableError  = 3004 // Room exists but is no longer joinable.
)
