package handler

import "net/http"

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health answers with a fixed payload and never touches storage.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Message: "Gezin App API is running"})
}
