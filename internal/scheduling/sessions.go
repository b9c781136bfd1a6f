package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayushpasi8829/meding/internal/notify"
)

var (
	// ErrNotAssignedDoctor: the acting doctor does not own the appointment.
	ErrNotAssignedDoctor = errors.New("only the assigned doctor may modify this appointment")
	// ErrInvalidTransition: the appointment is not in a state the requested
	// operation accepts.
	ErrInvalidTransition = errors.New("invalid appointment status transition")
	// ErrNotesRequireCompleted: notes may only be attached once a session
	// is completed.
	ErrNotesRequireCompleted = errors.New("notes can only be added to completed sessions")
	ErrEmptyNotes            = errors.New("notes must not be empty")
	ErrEmptyMeetLink         = errors.New("meeting link must not be empty")
)

// SessionService owns the appointment state machine:
// scheduled -> completed | cancelled | no-show, with completed and cancelled
// terminal. Every doctor-facing mutation checks ownership first.
type SessionService struct {
	repo     Repository
	notifier notify.Notifier
	logger   zerolog.Logger
}

func NewSessionService(repo Repository, notifier notify.Notifier, logger zerolog.Logger) *SessionService {
	return &SessionService{repo: repo, notifier: notifier, logger: logger}
}

// Cancel moves a scheduled session to cancelled and notifies the patient.
// Completed sessions cannot be cancelled.
func (s *SessionService) Cancel(ctx context.Context, doctorID, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.owned(ctx, doctorID, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: cannot cancel a %s session", ErrInvalidTransition, appt.Status)
	}

	updated, err := s.transition(ctx, appt.ID, StatusScheduled, StatusCancelled, EventSessionCancelled)
	if err != nil {
		return nil, err
	}

	go s.notifyPatient(context.WithoutCancel(ctx), updated,
		fmt.Sprintf("your session scheduled on %s at %s has been cancelled by the doctor",
			updated.Date.Format(DateFormat), updated.Window.StartTime))

	return updated, nil
}

// Complete moves a scheduled session to completed. A second complete call
// finds no scheduled row and is rejected.
func (s *SessionService) Complete(ctx context.Context, doctorID, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.owned(ctx, doctorID, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: cannot complete a %s session", ErrInvalidTransition, appt.Status)
	}
	return s.transition(ctx, appt.ID, StatusScheduled, StatusCompleted, EventSessionCompleted)
}

// MarkNoShow is the system-facing transition for patients who never joined.
func (s *SessionService) MarkNoShow(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: cannot mark a %s session as no-show", ErrInvalidTransition, appt.Status)
	}
	return s.transition(ctx, appt.ID, StatusScheduled, StatusNoShow, EventSessionNoShow)
}

// AddNotes attaches session notes; only allowed once the session completed.
func (s *SessionService) AddNotes(ctx context.Context, doctorID, appointmentID uuid.UUID, notes string) (*Appointment, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, ErrEmptyNotes
	}

	appt, err := s.owned(ctx, doctorID, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusCompleted {
		return nil, ErrNotesRequireCompleted
	}

	return s.repo.SetNotes(ctx, appt.ID, notes)
}

// AttachMeetLink sets the meeting link on a scheduled session and notifies
// the patient.
func (s *SessionService) AttachMeetLink(ctx context.Context, doctorID, appointmentID uuid.UUID, link string) (*Appointment, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, ErrEmptyMeetLink
	}

	appt, err := s.owned(ctx, doctorID, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: meeting link requires a scheduled session", ErrInvalidTransition)
	}

	updated, err := s.repo.SetMeetLink(ctx, appt.ID, link)
	if err != nil {
		return nil, err
	}

	go s.notifyPatient(context.WithoutCancel(ctx), updated,
		fmt.Sprintf("your session on %s at %s is confirmed. Meeting link: %s",
			updated.Date.Format(DateFormat), updated.Window.StartTime, link))

	return updated, nil
}

// ListRequests returns every appointment assigned to the doctor, newest
// first.
func (s *SessionService) ListRequests(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	return s.repo.ListByDoctor(ctx, doctorID)
}

// ListToday returns the doctor's scheduled sessions for the given day.
func (s *SessionService) ListToday(ctx context.Context, doctorID uuid.UUID, now time.Time) ([]Appointment, error) {
	day := calendarDay(now)
	return s.repo.ListByDoctorBetween(ctx, doctorID, day, day, StatusScheduled)
}

// ListUpcoming returns the doctor's scheduled sessions after the given day.
func (s *SessionService) ListUpcoming(ctx context.Context, doctorID uuid.UUID, now time.Time) ([]Appointment, error) {
	from := calendarDay(now).AddDate(0, 0, 1)
	to := from.AddDate(1, 0, 0)
	return s.repo.ListByDoctorBetween(ctx, doctorID, from, to, StatusScheduled)
}

// calendarDay resolves now to its calendar day in now's own location,
// expressed as the UTC midnight the date column stores. Truncating the
// instant instead would shift early-morning hours in east-of-UTC zones
// onto the previous day.
func calendarDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ListForPatient returns the patient's booking history, newest first.
func (s *SessionService) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *SessionService) owned(ctx context.Context, doctorID, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != doctorID {
		return nil, ErrNotAssignedDoctor
	}
	return appt, nil
}

func (s *SessionService) transition(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, eventType string) (*Appointment, error) {
	updated, err := s.repo.UpdateStatus(ctx, id, from, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// The CAS predicate missed: someone else moved the row first.
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	apptID := updated.ID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		CreatedAt:     time.Now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Stringer("appointment_id", apptID).Msg("insert event log failed")
	}

	return updated, nil
}

func (s *SessionService) notifyPatient(ctx context.Context, appt *Appointment, detail string) {
	if s.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	patient, err := s.repo.GetUserByID(ctx, appt.PatientID)
	if err != nil {
		s.logger.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("session notification skipped, patient lookup failed")
		return
	}

	msg := fmt.Sprintf("Hi %s, %s.", patient.FullName, detail)
	if err := s.notifier.NotifyPatient(ctx, patient.CountryCode+patient.Phone, msg, patient.Email); err != nil {
		s.logger.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("session notification failed")
	}
}
