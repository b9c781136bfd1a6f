package scheduling

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no-show"
)

// DateFormat is the wire format for calendar days. Time-of-day on an
// appointment lives in the window, never in the date.
const DateFormat = "2006-01-02"

var timeOfDayRe = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// TimeWindow is a time-of-day interval on the 24-hour clock, e.g.
// {09:00, 09:30}. Windows come from a fixed grid, so conflict checks
// compare keys exactly instead of doing interval overlap math.
type TimeWindow struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Validate checks both bounds against HH:mm and requires start < end.
// Lexicographic comparison is correct for zero-padded HH:mm strings.
func (w TimeWindow) Validate() error {
	if !timeOfDayRe.MatchString(w.StartTime) || !timeOfDayRe.MatchString(w.EndTime) {
		return fmt.Errorf("%w: window %s-%s must use HH:mm 24-hour format", ErrInvalidWindow, w.StartTime, w.EndTime)
	}
	if w.StartTime >= w.EndTime {
		return fmt.Errorf("%w: window start %s must be before end %s", ErrInvalidWindow, w.StartTime, w.EndTime)
	}
	return nil
}

// Key is the exact-match identity of a window within a day's grid.
func (w TimeWindow) Key() string {
	return w.StartTime + "-" + w.EndTime
}

// StartOn resolves the window's start to a wall-clock instant on the
// given day, in loc.
func (w TimeWindow) StartOn(date time.Time, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateFormat+" 15:04", date.Format(DateFormat)+" "+w.StartTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve window start: %w", err)
	}
	return t, nil
}

// PublishedAvailability is one doctor's full declared window set. Publishing
// replaces the prior set, it never merges.
type PublishedAvailability struct {
	DoctorID uuid.UUID
	Doctor   *UserRef
	Windows  []TimeWindow
}

// UserRef is the slice of a user record the scheduling core reads: identity
// and contact details for candidate lists and notifications.
type UserRef struct {
	ID              uuid.UUID
	FullName        string
	Email           string
	Phone           string
	CountryCode     string
	Role            string
	TherapyCategory *string
	Founder         bool
}

type Appointment struct {
	ID           uuid.UUID
	Date         time.Time
	Window       TimeWindow
	DoctorID     uuid.UUID
	PatientID    uuid.UUID
	BundleID     *uuid.UUID
	MeetLink     *string
	Status       AppointmentStatus
	Notes        *string
	Founder      bool
	ReminderSent bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Bundle is an externally owned multi-session payment plan. Scheduling only
// checks that a referenced bundle belongs to the patient and still has
// sessions left, and consumes one per booking.
type Bundle struct {
	ID                uuid.UUID
	PatientID         uuid.UUID
	TotalSessions     int
	SessionsRemaining int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// WindowAvailability groups the doctors still free for one window on one
// date. Grouping by window keeps the response bounded by grid size rather
// than doctor count.
type WindowAvailability struct {
	Window  TimeWindow
	Doctors []UserRef
}

// ParseDate validates and parses a YYYY-MM-DD calendar day.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidDate, s)
	}
	return d, nil
}
