package routes

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterPreflight matches OPTIONS on every path so that router middleware,
// CORS included, sees preflight requests instead of mux answering 405.
func RegisterPreflight(r *mux.Router) {
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
