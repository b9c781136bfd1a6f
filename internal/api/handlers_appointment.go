package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ayushpasi8829/meding/internal/scheduling"
)

// SlotPublisher is the availability-publishing slice of the scheduling core.
type SlotPublisher interface {
	Publish(ctx context.Context, doctorID uuid.UUID, windows []scheduling.TimeWindow) (*scheduling.PublishedAvailability, error)
}

// AvailabilityProvider computes open windows for a date.
type AvailabilityProvider interface {
	AvailableWindows(ctx context.Context, date string) ([]scheduling.WindowAvailability, error)
}

// Booker runs one booking attempt end to end.
type Booker interface {
	Book(ctx context.Context, req scheduling.BookingRequest) (*scheduling.Appointment, error)
}

func publishSlotsHandler(svc SlotPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := GetActor(r.Context())

		var req PublishSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "could not parse JSON")
			return
		}
		if len(req.Slots) == 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "at least one slot is required")
			return
		}

		windows := make([]scheduling.TimeWindow, 0, len(req.Slots))
		for _, s := range req.Slots {
			windows = append(windows, scheduling.TimeWindow{StartTime: s.StartTime, EndTime: s.EndTime})
		}

		av, err := svc.Publish(r.Context(), actor.ID, windows)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		slots := make([]TimeWindowPayload, 0, len(av.Windows))
		for _, wnd := range av.Windows {
			slots = append(slots, TimeWindowPayload{StartTime: wnd.StartTime, EndTime: wnd.EndTime})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Time slots saved successfully.",
			"data": map[string]any{
				"doctorId": av.DoctorID,
				"slots":    slots,
			},
		})
	}
}

func slotGridHandler(defaultStart, defaultEnd string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dayStart := r.URL.Query().Get("dayStart")
		if dayStart == "" {
			dayStart = defaultStart
		}
		dayEnd := r.URL.Query().Get("dayEnd")
		if dayEnd == "" {
			dayEnd = defaultEnd
		}

		grid, err := scheduling.GridTemplate(dayStart, dayEnd)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		slots := make([]TimeWindowPayload, 0, len(grid))
		for _, wnd := range grid {
			slots = append(slots, TimeWindowPayload{StartTime: wnd.StartTime, EndTime: wnd.EndTime})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Available 30-minute slots with 30-minute breaks",
			"slots":   slots,
		})
	}
}

func availableSlotsHandler(engine AvailabilityProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")

		windows, err := engine.AvailableWindows(r.Context(), date)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		slots := make([]AvailableSlotPayload, 0, len(windows))
		for _, wa := range windows {
			doctors := make([]DoctorPayload, 0, len(wa.Doctors))
			for _, d := range wa.Doctors {
				doctors = append(doctors, DoctorPayload{DoctorID: d.ID, Name: d.FullName, Email: d.Email})
			}
			slots = append(slots, AvailableSlotPayload{
				StartTime: wa.Window.StartTime,
				EndTime:   wa.Window.EndTime,
				Doctors:   doctors,
			})
		}

		writeJSON(w, http.StatusOK, AvailableSlotsResponse{
			Success:        true,
			Date:           date,
			AvailableSlots: slots,
			Count:          len(slots),
		})
	}
}

func bookAppointmentHandler(coordinator Booker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := GetActor(r.Context())

		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "could not parse JSON")
			return
		}

		booking := scheduling.BookingRequest{
			Date:                   req.Date,
			Window:                 scheduling.TimeWindow{StartTime: req.StartTime, EndTime: req.EndTime},
			PatientID:              actor.ID,
			Founder:                req.Founder,
			ContinueWithSameDoctor: req.ContinueWithSameDoctor,
		}

		if req.DoctorID != nil {
			doctorID, err := uuid.Parse(*req.DoctorID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "doctorId must be a valid UUID")
				return
			}
			booking.DoctorID = &doctorID
		}
		if req.BundleID != nil {
			bundleID, err := uuid.Parse(*req.BundleID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "bundleId must be a valid UUID")
				return
			}
			booking.BundleID = &bundleID
		}

		appt, err := coordinator.Book(r.Context(), booking)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"success":     true,
			"message":     "Appointment booked successfully.",
			"appointment": toAppointmentPayload(appt),
		})
	}
}

func myAppointmentsHandler(sessions SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := GetActor(r.Context())

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := sessions.ListForPatient(r.Context(), actor.ID, limit, offset)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"appointments": toAppointmentPayloads(appts),
		})
	}
}
