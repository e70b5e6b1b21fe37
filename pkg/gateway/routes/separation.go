package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/medsplit/pkg/verifier"
)

type SeparationHandler struct {
	verifier *verifier.Verifier
}

func NewSeparationHandler(v *verifier.Verifier) *SeparationHandler {
	return &SeparationHandler{verifier: v}
}

func (h *SeparationHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/verify-separation", h.handleVerify).Methods(http.MethodGet)
}

func (h *SeparationHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := h.verifier.Verify(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, report)
}
