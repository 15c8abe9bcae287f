// internal/handlers/profile.go
package handlers

import (
	"encoding/json"
	"net/http"
)

// LoadoutsHandler lists the calling user's saved board arrangements.
func LoadoutsHandler(gw *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := authenticateRequest(gw, r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		loadouts, err := gw.Store.GetLoadouts(r.Context(), user.ID)
		if err != nil {
			gw.Logger.Errorf("failed to list loadouts for %s: %v", user.PlayerID, err)
			http.Error(w, "error listing loadouts", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(loadouts)
	}
}

// HistoryHandler lists the calling user's match history, newest first.
func HistoryHandler(gw *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := authenticateRequest(gw, r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		entries, err := gw.Store.GetMatchHistory(r.Context(), user.PlayerID)
		if err != nil {
			gw.Logger.Errorf("failed to list history for %s: %v", user.PlayerID, err)
			http.Error(w, "error listing match history", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}
