package gatekeeper

import (
	"encoding/json"
	"net/http"
)

// Códigos estáveis no corpo das respostas de erro.
const (
	codeUnauthorized = "unauthorized"
	codeRateLimited  = "rate_limited"
	codeTooLarge     = "too_large"
	codeInternal     = "internal"
	codeMethod       = "method_not_allowed"
	codeBadRequest   = "bad_request"
)

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type successBody struct {
	RunAIConfig string `json:"runai_config"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Code: code, Error: msg})
}

// HealthHandler responde 200 enquanto o processo estiver de pé.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
