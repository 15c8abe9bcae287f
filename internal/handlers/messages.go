// internal/handlers/messages.go
package handlers

// Inbound room events form a small closed set of tagged variants, decoded
// and validated at the boundary before any dispatch. The envelope carries
// only the tag; each variant is re-decoded into its own struct.
type envelope struct {
	Type string `json:"type"`
}

const (
	msgSetGameType   = "set_game_type"
	msgToggleReady   = "toggle_ready"
	msgInitiateStart = "initiate_start"
	msgSubmitLoadout = "submit_loadout"
	msgCallNumber    = "call_number"
	msgClaimWin      = "claim_win"
	msgChat          = "chat"
	msgLeaveRoom     = "leave_room"
)

type setGameTypeMsg struct {
	GameType string `json:"gameType"`
}

type submitLoadoutMsg struct {
	Loadout []int `json:"loadout"`
}

type callNumberMsg struct {
	Number int `json:"number"`
}

type claimWinMsg struct {
	SessionID string `json:"sessionId"`
}

type chatMsg struct {
	Msg string `json:"msg"`
}
