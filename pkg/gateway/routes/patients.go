package routes

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/medsplit/pkg/clinical"
	"github.com/synaptica-ai/medsplit/pkg/linkage"
)

type PatientsHandler struct {
	manager *linkage.Manager
}

type RegisterRequest struct {
	FullName string      `json:"full_name"`
	Phone    string      `json:"phone"`
	Email    string      `json:"email"`
	Age      interface{} `json:"age"`
	Height   interface{} `json:"height"`
}

type RegisterResponse struct {
	LinkingID     string        `json:"linking_id"`
	State         linkage.State `json:"state"`
	ClinicalSaved bool          `json:"clinical_saved"`
	Warning       string        `json:"warning,omitempty"`
}

type DeleteResponse struct {
	Success         bool          `json:"success"`
	Message         string        `json:"message,omitempty"`
	Error           string        `json:"error,omitempty"`
	PIIDeleted      bool          `json:"pii_deleted"`
	ClinicalDeleted bool          `json:"clinical_deleted"`
	State           linkage.State `json:"state"`
}

type PatientListResponse struct {
	Patients []clinical.Summary `json:"patients"`
	Count    int                `json:"count"`
}

type MedicalDataResponse struct {
	Records []*clinical.Record `json:"medical_records"`
	Count   int                `json:"count"`
}

func NewPatientsHandler(manager *linkage.Manager) *PatientsHandler {
	return &PatientsHandler{manager: manager}
}

func (h *PatientsHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/patients", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/patients", h.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/patients/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/patients/{id}", h.handleUpdate).Methods(http.MethodPatch)
	r.HandleFunc("/api/patients/{id}", h.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/delete/{id}", h.handleDelete).Methods(http.MethodPost)
	r.HandleFunc("/api/medical-data", h.handleMedicalData).Methods(http.MethodGet)
}

func (h *PatientsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.manager.ListDisplayRecords(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, PatientListResponse{Patients: summaries, Count: len(summaries)})
}

func (h *PatientsHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRegister(r)
	if err != nil {
		writeJSONStatus(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}

	reg, err := h.manager.RegisterPatient(r.Context(), req.FullName, req.Phone, req.Email, req.Age, req.Height)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := RegisterResponse{LinkingID: reg.LinkingID, State: reg.State, ClinicalSaved: reg.ClinicalSaved()}
	if !resp.ClinicalSaved {
		resp.Warning = "patient registered without medical data; clinical store write failed"
		writeJSONStatus(w, http.StatusAccepted, resp)
		return
	}
	writeJSONStatus(w, http.StatusCreated, resp)
}

// decodeRegister accepts both JSON bodies and HTML form submissions.
func decodeRegister(r *http.Request) (RegisterRequest, error) {
	var req RegisterRequest
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") || strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.FullName = r.PostFormValue("full_name")
		req.Phone = r.PostFormValue("phone")
		req.Email = r.PostFormValue("email")
		req.Age = r.PostFormValue("age")
		req.Height = r.PostFormValue("height")
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

func (h *PatientsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := h.manager.GetDisplayRecord(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, record)
}

func (h *PatientsHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}

	updated, err := h.manager.UpdateClinical(r.Context(), id, fields)
	if err != nil {
		writeError(w, err)
		return
	}
	if !updated {
		writeError(w, clinical.ErrNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true, "linking_id": id})
}

func (h *PatientsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	out, err := h.manager.DeletePatient(r.Context(), mux.Vars(r)["id"])
	resp := DeleteResponse{
		Success:         out.Success(),
		PIIDeleted:      out.PIIDeleted,
		ClinicalDeleted: out.ClinicalDeleted,
		State:           out.State,
	}
	if err != nil {
		resp.Error = "patient could not be deleted"
		writeJSONStatus(w, http.StatusInternalServerError, resp)
		return
	}
	resp.Message = deleteMessage(out)
	writeJSON(w, resp)
}

func deleteMessage(out linkage.DeleteOutcome) string {
	switch {
	case out.ClinicalError != nil && out.PIIDeleted:
		return "Patient deleted; medical record could not be removed"
	case out.ClinicalError != nil:
		return "No personal record found; medical record could not be checked"
	case out.State == linkage.StateAbsent:
		return "No records found for this patient"
	default:
		return "Patient deleted"
	}
}

func (h *PatientsHandler) handleMedicalData(w http.ResponseWriter, r *http.Request) {
	records, err := h.manager.ListMedicalData(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, MedicalDataResponse{Records: records, Count: len(records)})
}
