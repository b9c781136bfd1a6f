package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ayushpasi8829/meding/internal/scheduling"
)

// SessionManager is the doctor-facing slice of the scheduling core: the
// appointment state machine plus listings.
type SessionManager interface {
	Cancel(ctx context.Context, doctorID, appointmentID uuid.UUID) (*scheduling.Appointment, error)
	Complete(ctx context.Context, doctorID, appointmentID uuid.UUID) (*scheduling.Appointment, error)
	AddNotes(ctx context.Context, doctorID, appointmentID uuid.UUID, notes string) (*scheduling.Appointment, error)
	AttachMeetLink(ctx context.Context, doctorID, appointmentID uuid.UUID, link string) (*scheduling.Appointment, error)
	ListRequests(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Appointment, error)
	ListToday(ctx context.Context, doctorID uuid.UUID, now time.Time) ([]scheduling.Appointment, error)
	ListUpcoming(ctx context.Context, doctorID uuid.UUID, now time.Time) ([]scheduling.Appointment, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]scheduling.Appointment, error)
}

type sessionAction func(ctx context.Context, doctorID, appointmentID uuid.UUID, req SessionActionRequest) (*scheduling.Appointment, error)

func sessionActionHandler(message string, action sessionAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := GetActor(r.Context())

		var req SessionActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "could not parse JSON")
			return
		}

		sessionID, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "sessionId must be a valid UUID")
			return
		}

		appt, err := action(r.Context(), actor.ID, sessionID, req)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": message,
			"data":    toAppointmentPayload(appt),
		})
	}
}

func cancelSessionHandler(sessions SessionManager) http.HandlerFunc {
	return sessionActionHandler("Appointment cancelled successfully by doctor",
		func(ctx context.Context, doctorID, appointmentID uuid.UUID, _ SessionActionRequest) (*scheduling.Appointment, error) {
			return sessions.Cancel(ctx, doctorID, appointmentID)
		})
}

func completeSessionHandler(sessions SessionManager) http.HandlerFunc {
	return sessionActionHandler("Session marked as completed",
		func(ctx context.Context, doctorID, appointmentID uuid.UUID, _ SessionActionRequest) (*scheduling.Appointment, error) {
			return sessions.Complete(ctx, doctorID, appointmentID)
		})
}

func sessionNotesHandler(sessions SessionManager) http.HandlerFunc {
	return sessionActionHandler("Notes added successfully",
		func(ctx context.Context, doctorID, appointmentID uuid.UUID, req SessionActionRequest) (*scheduling.Appointment, error) {
			return sessions.AddNotes(ctx, doctorID, appointmentID, req.Notes)
		})
}

func sessionMeetLinkHandler(sessions SessionManager) http.HandlerFunc {
	return sessionActionHandler("Session confirmed and patient notified",
		func(ctx context.Context, doctorID, appointmentID uuid.UUID, req SessionActionRequest) (*scheduling.Appointment, error) {
			return sessions.AttachMeetLink(ctx, doctorID, appointmentID, req.MeetingLink)
		})
}

type sessionListing func(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Appointment, error)

func sessionListHandler(message string, list sessionListing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := GetActor(r.Context())

		appts, err := list(r.Context(), actor.ID)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": message,
			"data":    toAppointmentPayloads(appts),
		})
	}
}

func sessionRequestsHandler(sessions SessionManager) http.HandlerFunc {
	return sessionListHandler("Doctor's session requests fetched",
		func(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Appointment, error) {
			return sessions.ListRequests(ctx, doctorID)
		})
}

func sessionsTodayHandler(sessions SessionManager) http.HandlerFunc {
	return sessionListHandler("Today's sessions fetched",
		func(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Appointment, error) {
			return sessions.ListToday(ctx, doctorID, time.Now())
		})
}

func sessionsUpcomingHandler(sessions SessionManager) http.HandlerFunc {
	return sessionListHandler("Upcoming sessions fetched",
		func(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Appointment, error) {
			return sessions.ListUpcoming(ctx, doctorID, time.Now())
		})
}
