package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(repo *fakeRepo) *BookingCoordinator {
	return NewBookingCoordinator(repo, NewAvailabilityEngine(repo), passLocker{}, nil, nil, zerolog.Nop())
}

func TestResolveStrategyPrecedence(t *testing.T) {
	docID := uuid.New()

	tests := []struct {
		name string
		req  BookingRequest
		want Strategy
	}{
		{"default", BookingRequest{}, StrategyAutoRandom},
		{"explicit", BookingRequest{DoctorID: &docID}, StrategyExplicit},
		{"continue beats explicit", BookingRequest{DoctorID: &docID, ContinueWithSameDoctor: true}, StrategyContinue},
		{"founder beats everything", BookingRequest{DoctorID: &docID, ContinueWithSameDoctor: true, Founder: true}, StrategyFounder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.ResolveStrategy())
		})
	}
}

func TestBookExplicitDoctor(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(repo)

	nine := TimeWindow{StartTime: "09:00", EndTime: "09:30"}
	doctorID := repo.addDoctor("alice", false)
	require.NoError(t, repo.ReplaceWindows(context.Background(), doctorID, []TimeWindow{nine}))
	patientID := repo.addPatient("pat")

	appt, err := c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: nine, PatientID: patientID, DoctorID: &doctorID,
	})
	require.NoError(t, err)
	assert.Equal(t, doctorID, appt.DoctorID)
	assert.Equal(t, patientID, appt.PatientID)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.False(t, appt.Founder)

	// A booking event is recorded.
	require.Len(t, repo.events, 1)
	assert.Equal(t, EventBookingCreated, repo.events[0].EventType)

	// Same slot again is rejected, not overwritten.
	other := repo.addPatient("other")
	_, err = c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: nine, PatientID: other, DoctorID: &doctorID,
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBookExplicitUnpublishedWindow(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(repo)

	doctorID := repo.addDoctor("alice", false)
	require.NoError(t, repo.ReplaceWindows(context.Background(), doctorID,
		[]TimeWindow{{StartTime: "09:00", EndTime: "09:30"}}))
	patientID := repo.addPatient("pat")

	_, err := c.Book(context.Background(), BookingRequest{
		Date:      "2026-09-01",
		Window:    TimeWindow{StartTime: "14:00", EndTime: "14:30"},
		PatientID: patientID,
		DoctorID:  &doctorID,
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBookValidation(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(repo)

	doctorID := repo.addDoctor("alice", false)
	patientID := repo.addPatient("pat")
	nine := TimeWindow{StartTime: "09:00", EndTime: "09:30"}

	_, err := c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: TimeWindow{StartTime: "9:00", EndTime: "9:30"}, PatientID: patientID,
	})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = c.Book(context.Background(), BookingRequest{
		Date: "not-a-date", Window: nine, PatientID: patientID,
	})
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: nine, PatientID: uuid.New(), DoctorID: &doctorID,
	})
	assert.ErrorIs(t, err, ErrPatientNotFound)

	unknown := uuid.New()
	_, err = c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: nine, PatientID: patientID, DoctorID: &unknown,
	})
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

// Concurrent requests for the same (doctor, date, window) must yield exactly
// one appointment.
func TestBookConcurrentSameSlot(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(repo)

	nine := TimeWindow{StartTime: "09:00", EndTime: "09:30"}
	doctorID := repo.addDoctor("alice", false)
	require.NoError(t, repo.ReplaceWindows(context.Background(), doctorID, []TimeWindow{nine}))

	const n = 32
	patients := make([]uuid.UUID, n)
	for i := range patients {
		patients[i] = repo.addPatient("pat")
	}

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = c.Book(context.Background(), BookingRequest{
				Date: "2026-09-01", Window: nine, PatientID: patients[i], DoctorID: &doctorID,
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrSlotTaken):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)

	active, err := repo.ListActiveForDate(context.Background(), mustDate(t, "2026-09-01"))
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestBookAutoRandomSkipsBookedDoctors(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(repo)

	nine := TimeWindow{StartTime: "09:00", EndTime: "09:30"}
	for _, name := range []string{"alice", "bob", "carol"} {
		id := repo.addDoctor(name, false)
		require.NoError(t, repo.ReplaceWindows(context.Background(), id, []TimeWindow{nine}))
	}

	// Always draw the first free candidate so exclusion is observable.
	c.pickIndex = func(int) int { return 0 }

	booked := make(map[uuid.UUID]bool)
	for i := 0; i < 3; i++ {
		patientID := repo.addPatient("pat")
		appt, err := c.Book(context.Background(), BookingRequest{
			Date: "2026-09-01", Window: nine, PatientID: patientID,
		})
		require.NoError(t, err)
		assert.False(t, booked[appt.DoctorID], "doctor selected twice for the same slot")
		booked[appt.DoctorID] = true
	}
	assert.Len(t, booked, 3)

	// Every doctor taken: further requests fail with all-booked.
	_, err := c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: nine, PatientID: repo.addPatient("late"),
	})
	assert.ErrorIs(t, err, ErrAllBooked)
}

func TestBookAutoRandomNoDoctorPublished(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(repo)
	patientID := repo.addPatient("pat")

	_, err := c.Book(context.Background(), BookingRequest{
		Date:      "2026-09-01",
		Window:    TimeWindow{StartTime: "09:00", EndTime: "09:30"},
		PatientID: patientID,
	})
	assert.ErrorIs(t, err, ErrNoDoctorAvailable)
}

func TestBookAutoRandomRetriesOnMidFlightConflict(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(repo)

	nine := TimeWindow{StartTime: "09:00", EndTime: "09:30"}
	first := repo.addDoctor("alice", false)
	second := repo.addDoctor("bob", false)
	require.NoError(t, repo.ReplaceWindows(context.Background(), first, []TimeWindow{nine}))
	require.NoError(t, repo.ReplaceWindows(context.Background(), second, []TimeWindow{nine}))
	patientID := repo.addPatient("pat")
	rival := repo.addPatient("rival")

	// The free list is computed, then a rival grabs whichever candidate the
	// coordinator will draw first. The coordinator must fall through to the
	// other doctor instead of failing.
	taken := false
	c.pickIndex = func(n int) int {
		if !taken {
			taken = true
			date := mustDate(t, "2026-09-01")
			// Steal doctor "alice" out from under the draw.
			_, err := repo.CreateAppointment(context.Background(), &Appointment{
				Date: date, Window: nine, DoctorID: first, PatientID: rival,
			})
			require.NoError(t, err)
		}
		return 0
	}

	appt, err := c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: nine, PatientID: patientID,
	})
	require.NoError(t, err)
	assert.Equal(t, second, appt.DoctorID)
}

func TestBookFounderStrategy(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(repo)

	nine := TimeWindow{StartTime: "09:00", EndTime: "09:30"}
	_ = repo.addDoctor("alice", false)
	founderID := repo.addDoctor("founder", true)
	require.NoError(t, repo.ReplaceWindows(context.Background(), founderID, []TimeWindow{nine}))
	patientID := repo.addPatient("pat")

	appt, err := c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: nine, PatientID: patientID, Founder: true,
	})
	require.NoError(t, err)
	assert.Equal(t, founderID, appt.DoctorID)
	assert.True(t, appt.Founder)
}

func TestBookContinueWithSameDoctor(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(repo)

	nine := TimeWindow{StartTime: "09:00", EndTime: "09:30"}
	ten := TimeWindow{StartTime: "10:00", EndTime: "10:30"}
	doctorID := repo.addDoctor("alice", false)
	require.NoError(t, repo.ReplaceWindows(context.Background(), doctorID, []TimeWindow{nine, ten}))
	patientID := repo.addPatient("pat")

	// No history yet.
	_, err := c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: nine, PatientID: patientID, ContinueWithSameDoctor: true,
	})
	assert.ErrorIs(t, err, ErrNoPriorDoctor)

	first, err := c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: nine, PatientID: patientID, DoctorID: &doctorID,
	})
	require.NoError(t, err)

	followUp, err := c.Book(context.Background(), BookingRequest{
		Date: "2026-09-08", Window: ten, PatientID: patientID, ContinueWithSameDoctor: true,
	})
	require.NoError(t, err)
	assert.Equal(t, first.DoctorID, followUp.DoctorID)

	// Continuity targets one doctor only: if that doctor's slot is taken the
	// request fails instead of falling back to someone else.
	rival := repo.addPatient("rival")
	_, priorErr := c.Book(context.Background(), BookingRequest{
		Date: "2026-09-08", Window: nine, PatientID: rival, DoctorID: &doctorID,
	})
	require.NoError(t, priorErr)

	_, err = c.Book(context.Background(), BookingRequest{
		Date: "2026-09-08", Window: nine, PatientID: patientID, ContinueWithSameDoctor: true,
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBookWithBundle(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(repo)

	nine := TimeWindow{StartTime: "09:00", EndTime: "09:30"}
	ten := TimeWindow{StartTime: "10:00", EndTime: "10:30"}
	doctorID := repo.addDoctor("alice", false)
	require.NoError(t, repo.ReplaceWindows(context.Background(), doctorID, []TimeWindow{nine, ten}))
	patientID := repo.addPatient("pat")
	bundleID := repo.addBundle(patientID, 1)

	appt, err := c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: nine, PatientID: patientID, DoctorID: &doctorID, BundleID: &bundleID,
	})
	require.NoError(t, err)
	require.NotNil(t, appt.BundleID)
	assert.Equal(t, bundleID, *appt.BundleID)

	b, err := repo.GetBundleByID(context.Background(), bundleID)
	require.NoError(t, err)
	assert.Equal(t, 0, b.SessionsRemaining)

	// Exhausted bundle blocks the next booking before any slot work happens.
	_, err = c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: ten, PatientID: patientID, DoctorID: &doctorID, BundleID: &bundleID,
	})
	assert.ErrorIs(t, err, ErrBundleExhausted)

	// A bundle owned by someone else is rejected.
	stranger := repo.addPatient("stranger")
	strangerBundle := repo.addBundle(stranger, 5)
	_, err = c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: ten, PatientID: patientID, DoctorID: &doctorID, BundleID: &strangerBundle,
	})
	assert.ErrorIs(t, err, ErrBundleOwnership)
}

func TestBookSlotBusyWhenLockHeld(t *testing.T) {
	repo := newFakeRepo()
	c := NewBookingCoordinator(repo, NewAvailabilityEngine(repo), failLocker{}, nil, nil, zerolog.Nop())

	nine := TimeWindow{StartTime: "09:00", EndTime: "09:30"}
	doctorID := repo.addDoctor("alice", false)
	require.NoError(t, repo.ReplaceWindows(context.Background(), doctorID, []TimeWindow{nine}))
	patientID := repo.addPatient("pat")

	_, err := c.Book(context.Background(), BookingRequest{
		Date: "2026-09-01", Window: nine, PatientID: patientID, DoctorID: &doctorID,
	})
	assert.ErrorIs(t, err, ErrSlotBusy)
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}
