package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayushpasi8829/meding/internal/scheduling"
	redisclient "github.com/ayushpasi8829/meding/internal/redis"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Success: false,
		Code:    code,
		Message: message,
	})
}

// writeSchedulingError maps the core error taxonomy onto HTTP statuses and
// stable codes the frontend branches on. 404 means the resource was never
// there; 409 means it existed but the state or a concurrent writer refused.
func writeSchedulingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrInvalidWindow),
		errors.Is(err, scheduling.ErrInvalidDate),
		errors.Is(err, scheduling.ErrEmptyNotes),
		errors.Is(err, scheduling.ErrEmptyMeetLink):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())

	case errors.Is(err, scheduling.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrBundleNotFound):
		writeError(w, http.StatusNotFound, "bundle_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAvailabilityNotFound):
		writeError(w, http.StatusNotFound, "availability_not_found", err.Error())
	case errors.Is(err, scheduling.ErrNoDoctorAvailable):
		writeError(w, http.StatusNotFound, "no_doctor_available", err.Error())
	case errors.Is(err, scheduling.ErrNoPriorDoctor):
		writeError(w, http.StatusNotFound, "no_prior_doctor", err.Error())

	case errors.Is(err, scheduling.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, scheduling.ErrAllBooked):
		writeError(w, http.StatusConflict, "all_booked", err.Error())
	case errors.Is(err, scheduling.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, scheduling.ErrSlotBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, scheduling.ErrInvalidTransition),
		errors.Is(err, scheduling.ErrNotesRequireCompleted):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, scheduling.ErrBundleExhausted):
		writeError(w, http.StatusConflict, "bundle_exhausted", err.Error())

	case errors.Is(err, scheduling.ErrNotAssignedDoctor),
		errors.Is(err, scheduling.ErrBundleOwnership):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}
