package middleware

import (
	"encoding/json"
	"net/http"

	"clinic-trash/internal/model"
)

func writeJSONError(w http.ResponseWriter, status int, body *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{Success: false, Error: body})
}
