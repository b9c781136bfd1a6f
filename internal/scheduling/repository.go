package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidWindow = errors.New("invalid time window")
	ErrInvalidDate   = errors.New("invalid date")

	ErrDoctorNotFound       = errors.New("doctor not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrAvailabilityNotFound = errors.New("no published availability for doctor")
	ErrBundleNotFound       = errors.New("bundle not found")

	// ErrSlotTaken is the storage layer's verdict when the unique index on
	// active (doctor, date, window) rows rejects an insert. Exactly one of
	// any set of concurrent writers for the same slot avoids it.
	ErrSlotTaken = errors.New("slot already booked for this doctor")

	ErrBundleExhausted = errors.New("bundle has no sessions remaining")
	ErrBundleOwnership = errors.New("bundle does not belong to this patient")
)

// Repository contains all DB interactions needed by the scheduling core.
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*UserRef, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*UserRef, error)
	GetFounderDoctor(ctx context.Context) (*UserRef, error)

	// Published availability (upsert-replace per doctor)
	ReplaceWindows(ctx context.Context, doctorID uuid.UUID, windows []TimeWindow) error
	GetWindowsByDoctor(ctx context.Context, doctorID uuid.UUID) (*PublishedAvailability, error)
	ListAllAvailability(ctx context.Context) ([]PublishedAvailability, error)
	ListDoctorsWithWindow(ctx context.Context, window TimeWindow) ([]UserRef, error)

	// Appointments
	CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListActiveForDate(ctx context.Context, date time.Time) ([]Appointment, error)
	ListBookedDoctors(ctx context.Context, date time.Time, window TimeWindow) ([]uuid.UUID, error)
	HasActiveAppointment(ctx context.Context, doctorID uuid.UUID, date time.Time, window TimeWindow) (bool, error)
	LatestByPatient(ctx context.Context, patientID uuid.UUID) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)
	ListByDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time, status AppointmentStatus) ([]Appointment, error)

	// Status transitions are compare-and-swap on the current status so a
	// stale caller loses instead of overwriting.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	SetNotes(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error)
	SetMeetLink(ctx context.Context, id uuid.UUID, link string) (*Appointment, error)

	// Reminder sweep
	FindDueForReminder(ctx context.Context, from, to time.Time) ([]Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error

	// Bundle bookkeeping (adjacent to, not owned by, scheduling)
	GetBundleByID(ctx context.Context, id uuid.UUID) (*Bundle, error)
	ConsumeBundleSession(ctx context.Context, id uuid.UUID) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
