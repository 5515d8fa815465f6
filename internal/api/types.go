package api

import (
	"encoding/json"
	"net/http"
)

// CreateConsultationRequest mirrors the intake form: which doctor, which
// specialty, when, and the optional free-text symptoms.
type CreateConsultationRequest struct {
	DoctorID    string `json:"doctorId"`
	SpecialtyID string `json:"specialtyId"`
	Day         string `json:"day"`
	Time        string `json:"time"`
	Symptoms    string `json:"symptoms,omitempty"`
}

// AcceptedResponse tells the caller the request was received, not that it
// was validated or booked.
type AcceptedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type SelectOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FormOptions feeds the booking form's select inputs.
type FormOptions struct {
	Doctors     []SelectOption `json:"doctors"`
	Specialties []SelectOption `json:"specialties"`
	Days        []SelectOption `json:"days"`
	Times       []SelectOption `json:"times"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
