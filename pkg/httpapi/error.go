package httpapi

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// ErrorEnvelope is the body of every API error response.
type ErrorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// WriteJSON encodes payload before touching w, so an unencodable payload
// becomes a plain 500 instead of a truncated body. A nil payload writes only
// the status.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	if payload == nil {
		w.WriteHeader(status)
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(append(body, '\n'))
	return err
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{Code: code, Message: message, Meta: meta})
}
