package common

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/vetnav/resource-finder/pkg/tracking"
)

// JsonHandler wraps a handler with session cookie handling, CORS
// preflight and a JSON encoder on the response.
func JsonHandler(trk tracking.Tracking, fn func(w http.ResponseWriter, r *http.Request, sessionId int, enc *json.Encoder) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			RespondToOptions(w, r)
			return
		}
		sessionId := HandleSessionCookie(trk, w, r)
		w.Header().Set("Content-Type", "application/json")
		if err := fn(w, r, sessionId, json.NewEncoder(w)); err != nil {
			log.Printf("error handling request: %v", err)
		}
	}
}

// ErrorPayload is the inline, dismissable error shown for recoverable
// failures. Retrying is always a fresh request, never automatic.
type ErrorPayload struct {
	Error string `json:"error"`
}

// WriteError sends a recoverable failure as a JSON payload.
func WriteError(w http.ResponseWriter, status int, message string) error {
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(ErrorPayload{Error: message})
}

func RespondToOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	origin := r.Header.Get("Origin")
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.WriteHeader(http.StatusAccepted)
}
