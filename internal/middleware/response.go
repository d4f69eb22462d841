package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/finquiz/backend/internal/models"
)

// writeError sends the standard failure envelope from middleware that runs before any handler
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Success: false, Error: message})
}
