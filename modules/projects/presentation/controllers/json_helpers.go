package controllers

import (
	"net/http"

	"github.com/iota-uz/tenantkit/pkg/composables"
	"github.com/iota-uz/tenantkit/pkg/httpapi"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	if err := httpapi.WriteJSON(w, status, payload); err != nil {
		panic(err)
	}
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	meta := map[string]string{}
	if id := composables.UseRequestID(r.Context()); id != "" {
		meta["request_id"] = id
	}
	_ = httpapi.WriteError(w, status, code, message, meta)
}
