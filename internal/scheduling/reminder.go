package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayushpasi8829/meding/internal/notify"
)

// Clock abstracts wall-clock time so sweep logic is testable without real
// waits.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

// ReminderScheduler sweeps for scheduled appointments whose start falls
// inside the lookahead band and notifies each patient once. The
// reminder_sent flag flips after the notification attempt regardless of
// delivery outcome, so one attempt is all a session ever gets.
type ReminderScheduler struct {
	repo      Repository
	notifier  notify.Notifier
	clock     Clock
	metrics   *Metrics
	logger    zerolog.Logger
	lookahead Lookahead
}

// Lookahead is the band, relative to now, in which a session becomes due
// for its reminder.
type Lookahead struct {
	Min time.Duration
	Max time.Duration
}

func NewReminderScheduler(repo Repository, notifier notify.Notifier, clock Clock, metrics *Metrics, lookahead Lookahead, logger zerolog.Logger) *ReminderScheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &ReminderScheduler{
		repo:      repo,
		notifier:  notifier,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
		lookahead: lookahead,
	}
}

// Sweep runs one pass. Safe to call from overlapping schedules: the flag
// update is conditional on reminder_sent=false, so a session already claimed
// by another sweep is skipped.
func (s *ReminderScheduler) Sweep(ctx context.Context) error {
	start := s.clock.Now()
	defer func() {
		s.metrics.ObserveSweepDuration(time.Since(start).Seconds())
	}()

	from := start.Add(s.lookahead.Min)
	to := start.Add(s.lookahead.Max)

	due, err := s.repo.FindDueForReminder(ctx, from, to)
	if err != nil {
		return fmt.Errorf("find due reminders: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Info().Int("count", len(due)).Time("from", from).Time("to", to).Msg("reminder sweep found due sessions")

	for _, appt := range due {
		s.notifyReminder(ctx, appt)

		// The flag flips after the attempt, delivered or not, so a session
		// gets exactly one attempt. The conditional update also drops rows
		// an overlapping sweep already claimed.
		if err := s.repo.MarkReminderSent(ctx, appt.ID); err != nil {
			s.logger.Debug().Err(err).Stringer("appointment_id", appt.ID).Msg("reminder flag already set")
		}
	}

	return nil
}

func (s *ReminderScheduler) notifyReminder(ctx context.Context, appt Appointment) {
	patient, err := s.repo.GetUserByID(ctx, appt.PatientID)
	if err != nil {
		s.metrics.ObserveReminder("lookup_failed")
		s.logger.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("reminder skipped, patient lookup failed")
		return
	}

	msg := fmt.Sprintf("Hi %s, reminder: your session starts at %s today.", patient.FullName, appt.Window.StartTime)
	if appt.MeetLink != nil && *appt.MeetLink != "" {
		msg += " Join: " + *appt.MeetLink
	}

	if err := s.notifier.NotifyPatient(ctx, patient.CountryCode+patient.Phone, msg, patient.Email); err != nil {
		s.metrics.ObserveReminder("failed")
		s.logger.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("reminder notification failed")
		return
	}

	s.metrics.ObserveReminder("sent")

	apptID := appt.ID
	ev := EventLog{
		EventType:     EventReminderSent,
		AppointmentID: &apptID,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).Stringer("appointment_id", apptID).Msg("insert reminder event failed")
	}
}
