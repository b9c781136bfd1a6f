package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/ayushpasi8829/meding/internal/redis"
)

// fakeRepo is an in-memory Repository that enforces the same active-slot
// uniqueness the Postgres partial index does, under a mutex, so concurrency
// tests exercise the real contract.
type fakeRepo struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*UserRef
	windows map[uuid.UUID][]TimeWindow
	appts   map[uuid.UUID]*Appointment
	bundles map[uuid.UUID]*Bundle
	events  []EventLog
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:   make(map[uuid.UUID]*UserRef),
		windows: make(map[uuid.UUID][]TimeWindow),
		appts:   make(map[uuid.UUID]*Appointment),
		bundles: make(map[uuid.UUID]*Bundle),
	}
}

func (r *fakeRepo) addDoctor(name string, founder bool) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.users[id] = &UserRef{ID: id, FullName: name, Email: name + "@example.com", Phone: "5550000000", CountryCode: "+91", Role: "doctor", Founder: founder}
	return id
}

func (r *fakeRepo) addPatient(name string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.users[id] = &UserRef{ID: id, FullName: name, Email: name + "@example.com", Phone: "5551111111", CountryCode: "+91", Role: "patient"}
	return id
}

func (r *fakeRepo) addBundle(patientID uuid.UUID, remaining int) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.bundles[id] = &Bundle{ID: id, PatientID: patientID, TotalSessions: remaining, SessionsRemaining: remaining}
	return id
}

func (r *fakeRepo) GetUserByID(_ context.Context, id uuid.UUID) (*UserRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*UserRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.Role != "doctor" {
		return nil, ErrDoctorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepo) GetFounderDoctor(_ context.Context) (*UserRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Role == "doctor" && u.Founder {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *fakeRepo) ReplaceWindows(_ context.Context, doctorID uuid.UUID, windows []TimeWindow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows[doctorID] = append([]TimeWindow(nil), windows...)
	return nil
}

func (r *fakeRepo) GetWindowsByDoctor(_ context.Context, doctorID uuid.UUID) (*PublishedAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.windows[doctorID]
	if !ok || len(ws) == 0 {
		return nil, ErrAvailabilityNotFound
	}
	return &PublishedAvailability{DoctorID: doctorID, Windows: append([]TimeWindow(nil), ws...)}, nil
}

func (r *fakeRepo) ListAllAvailability(_ context.Context) ([]PublishedAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []PublishedAvailability
	for doctorID, ws := range r.windows {
		if len(ws) == 0 {
			continue
		}
		doctor := *r.users[doctorID]
		result = append(result, PublishedAvailability{
			DoctorID: doctorID,
			Doctor:   &doctor,
			Windows:  append([]TimeWindow(nil), ws...),
		})
	}
	return result, nil
}

func (r *fakeRepo) ListDoctorsWithWindow(_ context.Context, window TimeWindow) ([]UserRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []UserRef
	for doctorID, ws := range r.windows {
		for _, w := range ws {
			if w.Key() == window.Key() {
				result = append(result, *r.users[doctorID])
				break
			}
		}
	}
	return result, nil
}

func (r *fakeRepo) CreateAppointment(_ context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.appts {
		if existing.DoctorID == appt.DoctorID &&
			existing.Date.Equal(appt.Date) &&
			existing.Window.Key() == appt.Window.Key() &&
			(existing.Status == StatusScheduled || existing.Status == StatusCompleted) {
			return nil, ErrSlotTaken
		}
	}

	created := *appt
	created.ID = uuid.New()
	created.Status = StatusScheduled
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	r.appts[created.ID] = &created

	cp := created
	return &cp, nil
}

func (r *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) ListActiveForDate(_ context.Context, date time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Appointment
	for _, a := range r.appts {
		if a.Date.Equal(date) && (a.Status == StatusScheduled || a.Status == StatusCompleted) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *fakeRepo) ListBookedDoctors(_ context.Context, date time.Time, window TimeWindow) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []uuid.UUID
	for _, a := range r.appts {
		if a.Date.Equal(date) && a.Window.Key() == window.Key() &&
			(a.Status == StatusScheduled || a.Status == StatusCompleted) {
			result = append(result, a.DoctorID)
		}
	}
	return result, nil
}

func (r *fakeRepo) HasActiveAppointment(_ context.Context, doctorID uuid.UUID, date time.Time, window TimeWindow) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Date.Equal(date) && a.Window.Key() == window.Key() &&
			(a.Status == StatusScheduled || a.Status == StatusCompleted) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) LatestByPatient(_ context.Context, patientID uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *Appointment
	for _, a := range r.appts {
		if a.PatientID != patientID {
			continue
		}
		if latest == nil || a.Date.After(latest.Date) ||
			(a.Date.Equal(latest.Date) && a.CreatedAt.After(latest.CreatedAt)) {
			latest = a
		}
	}
	if latest == nil {
		return nil, ErrAppointmentNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *fakeRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *fakeRepo) ListByDoctorBetween(_ context.Context, doctorID uuid.UUID, from, to time.Time, status AppointmentStatus) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Status == status &&
			!a.Date.Before(from) && !a.Date.After(to) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) SetNotes(_ context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Notes = &notes
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) SetMeetLink(_ context.Context, id uuid.UUID, link string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.MeetLink = &link
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) FindDueForReminder(_ context.Context, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Appointment
	for _, a := range r.appts {
		if a.Status != StatusScheduled || a.ReminderSent {
			continue
		}
		startAt, err := a.Window.StartOn(a.Date, time.UTC)
		if err != nil {
			return nil, err
		}
		if !startAt.Before(from) && !startAt.After(to) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *fakeRepo) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.ReminderSent {
		return ErrAppointmentNotFound
	}
	a.ReminderSent = true
	return nil
}

func (r *fakeRepo) GetBundleByID(_ context.Context, id uuid.UUID) (*Bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bundles[id]
	if !ok {
		return nil, ErrBundleNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeRepo) ConsumeBundleSession(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bundles[id]
	if !ok || b.SessionsRemaining <= 0 {
		return ErrBundleExhausted
	}
	b.SessionsRemaining--
	return nil
}

func (r *fakeRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// passLocker runs the critical section directly; the fake repo's mutex
// provides the atomicity under test.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, _ time.Time, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// failLocker simulates a lock already held by a competitor.
type failLocker struct{}

func (failLocker) WithSlotLock(_ context.Context, _ uuid.UUID, _ time.Time, _ string, _ func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// recordingNotifier captures every notification attempt.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (n *recordingNotifier) NotifyPatient(_ context.Context, _, message, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, message)
	if n.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// fixedClock is a settable Clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
