package request

import (
	"encoding/json"
	"net/http"
)

// JSONResponse writes v as a JSON body with the given status code.
func JSONResponse(w http.ResponseWriter, v interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// JSONError writes an error message in a JSON envelope.
func JSONError(w http.ResponseWriter, message string, code int) {
	JSONResponse(w, map[string]string{"error": message}, code)
}
