package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayushpasi8829/meding/internal/notify"
	redisclient "github.com/ayushpasi8829/meding/internal/redis"
)

const (
	EventBookingCreated   = "BOOKING_CREATED"
	EventSessionCancelled = "SESSION_CANCELLED"
	EventSessionCompleted = "SESSION_COMPLETED"
	EventSessionNoShow    = "SESSION_NO_SHOW"
	EventReminderSent     = "REMINDER_SENT"
)

type Strategy string

const (
	StrategyExplicit   Strategy = "explicit"
	StrategyAutoRandom Strategy = "auto-random"
	StrategyContinue   Strategy = "continue-same-doctor"
	StrategyFounder    Strategy = "founder"
)

var (
	// ErrSlotUnavailable: the targeted doctor never published this window,
	// or already holds it on this date.
	ErrSlotUnavailable = errors.New("doctor is not available for this slot")
	// ErrAllBooked: doctors published the window but every one of them is
	// already taken on this date.
	ErrAllBooked = errors.New("all doctors are booked for this time slot")
	// ErrNoDoctorAvailable: no doctor has this window in their published set
	// at all.
	ErrNoDoctorAvailable = errors.New("no doctors available for the given time slot")
	// ErrNoPriorDoctor: continue-with-same-doctor with no booking history.
	ErrNoPriorDoctor = errors.New("patient has no prior appointment to continue from")
	// ErrSlotBusy: another request holds the slot lock right now.
	ErrSlotBusy = errors.New("slot is currently being booked, please retry")
)

// BookingRequest carries one booking attempt. Strategy flags resolve in
// priority order: founder, then continueWithSameDoctor, then an explicit
// doctorId, then auto-random.
type BookingRequest struct {
	Date                   string
	Window                 TimeWindow
	PatientID              uuid.UUID
	DoctorID               *uuid.UUID
	BundleID               *uuid.UUID
	Founder                bool
	ContinueWithSameDoctor bool
}

func (r BookingRequest) ResolveStrategy() Strategy {
	switch {
	case r.Founder:
		return StrategyFounder
	case r.ContinueWithSameDoctor:
		return StrategyContinue
	case r.DoctorID != nil:
		return StrategyExplicit
	default:
		return StrategyAutoRandom
	}
}

// BookingCoordinator atomically binds one doctor to one patient for one
// (date, window). The Redis slot lock serializes competitors for the same
// slot; the appointments unique index settles whatever the lock lets through.
type BookingCoordinator struct {
	repo         Repository
	availability *AvailabilityEngine
	locker       redisclient.Locker
	notifier     notify.Notifier
	metrics      *Metrics
	logger       zerolog.Logger

	// pickIndex selects among n free candidates; overridden in tests.
	pickIndex func(n int) int
}

func NewBookingCoordinator(repo Repository, availability *AvailabilityEngine, locker redisclient.Locker, notifier notify.Notifier, metrics *Metrics, logger zerolog.Logger) *BookingCoordinator {
	return &BookingCoordinator{
		repo:         repo,
		availability: availability,
		locker:       locker,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger,
		pickIndex:    rand.Intn,
	}
}

// Book validates the request, resolves a doctor under the requested
// strategy, and persists the appointment. Second writers for the same
// (doctor, date, window) fail, they never overwrite.
func (c *BookingCoordinator) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	strategy := req.ResolveStrategy()

	appt, err := c.book(ctx, req, strategy)
	if err != nil {
		c.metrics.ObserveBooking(strategy, outcomeLabel(err))
		return nil, err
	}
	c.metrics.ObserveBooking(strategy, "success")

	c.logEvent(ctx, appt.ID, EventBookingCreated, map[string]any{
		"strategy":   string(strategy),
		"doctor_id":  appt.DoctorID.String(),
		"patient_id": appt.PatientID.String(),
		"date":       appt.Date.Format(DateFormat),
		"window":     appt.Window.Key(),
	})

	// Fire and forget: notification failure never unwinds a booking.
	go c.notifyBooked(context.WithoutCancel(ctx), appt)

	return appt, nil
}

func (c *BookingCoordinator) book(ctx context.Context, req BookingRequest, strategy Strategy) (*Appointment, error) {
	if err := req.Window.Validate(); err != nil {
		return nil, err
	}
	date, err := ParseDate(req.Date)
	if err != nil {
		return nil, err
	}

	patient, err := c.repo.GetUserByID(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}

	var bundle *Bundle
	if req.BundleID != nil {
		bundle, err = c.repo.GetBundleByID(ctx, *req.BundleID)
		if err != nil {
			return nil, err
		}
		if bundle.PatientID != patient.ID {
			return nil, ErrBundleOwnership
		}
		if bundle.SessionsRemaining <= 0 {
			return nil, ErrBundleExhausted
		}
	}

	var appt *Appointment
	switch strategy {
	case StrategyFounder:
		doctor, derr := c.repo.GetFounderDoctor(ctx)
		if derr != nil {
			return nil, derr
		}
		appt, err = c.bookWithDoctor(ctx, req, date, doctor.ID, true)
	case StrategyContinue:
		prior, perr := c.repo.LatestByPatient(ctx, req.PatientID)
		if perr != nil {
			if errors.Is(perr, ErrAppointmentNotFound) {
				return nil, ErrNoPriorDoctor
			}
			return nil, perr
		}
		appt, err = c.bookWithDoctor(ctx, req, date, prior.DoctorID, false)
	case StrategyExplicit:
		appt, err = c.bookWithDoctor(ctx, req, date, *req.DoctorID, false)
	default:
		appt, err = c.bookAutoRandom(ctx, req, date)
	}
	if err != nil {
		return nil, err
	}

	if bundle != nil {
		if cerr := c.repo.ConsumeBundleSession(ctx, bundle.ID); cerr != nil {
			// The booking stands; bundle bookkeeping is adjacent, not owned.
			c.logger.Error().Err(cerr).
				Stringer("appointment_id", appt.ID).
				Stringer("bundle_id", bundle.ID).
				Msg("bundle session not consumed after booking")
		}
	}

	return appt, nil
}

// bookWithDoctor handles every strategy that targets one known doctor:
// verify the window is in the doctor's published set, then check-and-insert
// under the slot lock.
func (c *BookingCoordinator) bookWithDoctor(ctx context.Context, req BookingRequest, date time.Time, doctorID uuid.UUID, founder bool) (*Appointment, error) {
	if _, err := c.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	av, err := c.repo.GetWindowsByDoctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrAvailabilityNotFound) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}
	if !containsWindow(av.Windows, req.Window) {
		return nil, ErrSlotUnavailable
	}

	var created *Appointment
	err = c.locker.WithSlotLock(ctx, doctorID, date, req.Window.Key(), func(lockCtx context.Context) error {
		taken, err := c.repo.HasActiveAppointment(lockCtx, doctorID, date, req.Window)
		if err != nil {
			return fmt.Errorf("check active appointment: %w", err)
		}
		if taken {
			return ErrSlotUnavailable
		}

		created, err = c.repo.CreateAppointment(lockCtx, &Appointment{
			Date:      date,
			Window:    req.Window,
			DoctorID:  doctorID,
			PatientID: req.PatientID,
			BundleID:  req.BundleID,
			Founder:   founder,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}
	return created, nil
}

// bookAutoRandom selects uniformly at random among free candidates. A
// candidate lost to a concurrent writer mid-flight is dropped and another
// is drawn; only when every candidate is gone does the attempt fail.
func (c *BookingCoordinator) bookAutoRandom(ctx context.Context, req BookingRequest, date time.Time) (*Appointment, error) {
	published, free, err := c.availability.FreeDoctorsForWindow(ctx, req.Date, req.Window)
	if err != nil {
		return nil, err
	}
	if len(published) == 0 {
		return nil, ErrNoDoctorAvailable
	}
	if len(free) == 0 {
		return nil, ErrAllBooked
	}

	candidates := make([]UserRef, len(free))
	copy(candidates, free)

	for len(candidates) > 0 {
		i := c.pickIndex(len(candidates))
		doctor := candidates[i]
		candidates = append(candidates[:i], candidates[i+1:]...)

		var created *Appointment
		err := c.locker.WithSlotLock(ctx, doctor.ID, date, req.Window.Key(), func(lockCtx context.Context) error {
			taken, err := c.repo.HasActiveAppointment(lockCtx, doctor.ID, date, req.Window)
			if err != nil {
				return fmt.Errorf("check active appointment: %w", err)
			}
			if taken {
				return ErrSlotTaken
			}

			created, err = c.repo.CreateAppointment(lockCtx, &Appointment{
				Date:      date,
				Window:    req.Window,
				DoctorID:  doctor.ID,
				PatientID: req.PatientID,
				BundleID:  req.BundleID,
			})
			return err
		})
		switch {
		case err == nil:
			return created, nil
		case errors.Is(err, ErrSlotTaken), errors.Is(err, redisclient.ErrLockNotAcquired):
			continue
		default:
			return nil, err
		}
	}

	return nil, ErrAllBooked
}

func (c *BookingCoordinator) notifyBooked(ctx context.Context, appt *Appointment) {
	if c.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	patient, err := c.repo.GetUserByID(ctx, appt.PatientID)
	if err != nil {
		c.logger.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("booking notification skipped, patient lookup failed")
		return
	}
	doctor, err := c.repo.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil {
		c.logger.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("booking notification skipped, doctor lookup failed")
		return
	}

	msg := fmt.Sprintf("Hi %s, your session with %s on %s at %s has been booked.",
		patient.FullName, doctor.FullName, appt.Date.Format(DateFormat), appt.Window.StartTime)

	if err := c.notifier.NotifyPatient(ctx, patient.CountryCode+patient.Phone, msg, patient.Email); err != nil {
		c.logger.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("booking notification failed")
	}
}

func (c *BookingCoordinator) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload failed")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := c.repo.InsertEvent(ctx, ev); err != nil {
		c.logger.Error().Err(err).Str("event_type", eventType).Stringer("appointment_id", appointmentID).Msg("insert event log failed")
	}
}

func containsWindow(windows []TimeWindow, w TimeWindow) bool {
	for _, have := range windows {
		if have.Key() == w.Key() {
			return true
		}
	}
	return false
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrAllBooked):
		return "all_booked"
	case errors.Is(err, ErrNoDoctorAvailable):
		return "no_doctor"
	case errors.Is(err, ErrNoPriorDoctor):
		return "no_prior_doctor"
	case errors.Is(err, ErrSlotTaken):
		return "conflict"
	case errors.Is(err, ErrSlotBusy):
		return "busy"
	case errors.Is(err, ErrInvalidWindow), errors.Is(err, ErrInvalidDate):
		return "invalid"
	default:
		return "error"
	}
}
