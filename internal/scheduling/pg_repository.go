package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// activeSlotConstraint is the partial unique index on appointments that
// enforces at-most-one active booking per (doctor, date, window).
const activeSlotConstraint = "uq_appointments_active_slot"

// DB is the subset of pgxpool.Pool the repository needs. pgxmock satisfies
// it in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

// Helpers

func scanUser(row pgx.Row, notFound error) (*UserRef, error) {
	var u UserRef
	err := row.Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.Phone,
		&u.CountryCode,
		&u.Role,
		&u.TherapyCategory,
		&u.Founder,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}
	return &u, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.Date,
		&a.Window.StartTime,
		&a.Window.EndTime,
		&a.DoctorID,
		&a.PatientID,
		&a.BundleID,
		&a.MeetLink,
		&a.Status,
		&a.Notes,
		&a.Founder,
		&a.ReminderSent,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

const appointmentColumns = `id, date, start_time, end_time, doctor_id, patient_id, bundle_id, meet_link, status, notes, founder, reminder_sent, created_at, updated_at`

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Users

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*UserRef, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, full_name, email, phone, country_code, role, therapy_category, founder
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row, ErrPatientNotFound)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*UserRef, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, full_name, email, phone, country_code, role, therapy_category, founder
		FROM users
		WHERE id = $1 AND role = 'doctor'
	`, id)
	return scanUser(row, ErrDoctorNotFound)
}

func (r *PgRepository) GetFounderDoctor(ctx context.Context) (*UserRef, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, full_name, email, phone, country_code, role, therapy_category, founder
		FROM users
		WHERE role = 'doctor' AND founder = true
		ORDER BY created_at
		LIMIT 1
	`)
	return scanUser(row, ErrDoctorNotFound)
}

// Published availability

func (r *PgRepository) ReplaceWindows(ctx context.Context, doctorID uuid.UUID, windows []TimeWindow) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace windows: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM published_windows WHERE doctor_id = $1
	`, doctorID); err != nil {
		return fmt.Errorf("clear published windows: %w", err)
	}

	for _, w := range windows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO published_windows (doctor_id, start_time, end_time, created_at)
			VALUES ($1, $2, $3, now())
		`, doctorID, w.StartTime, w.EndTime); err != nil {
			return fmt.Errorf("insert published window: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) GetWindowsByDoctor(ctx context.Context, doctorID uuid.UUID) (*PublishedAvailability, error) {
	rows, err := r.db.Query(ctx, `
		SELECT start_time, end_time
		FROM published_windows
		WHERE doctor_id = $1
		ORDER BY start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	av := PublishedAvailability{DoctorID: doctorID}
	for rows.Next() {
		var w TimeWindow
		if err := rows.Scan(&w.StartTime, &w.EndTime); err != nil {
			return nil, err
		}
		av.Windows = append(av.Windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(av.Windows) == 0 {
		return nil, ErrAvailabilityNotFound
	}
	return &av, nil
}

func (r *PgRepository) ListAllAvailability(ctx context.Context) ([]PublishedAvailability, error) {
	rows, err := r.db.Query(ctx, `
		SELECT w.doctor_id, w.start_time, w.end_time,
		       u.full_name, u.email, u.phone, u.country_code, u.therapy_category, u.founder
		FROM published_windows w
		JOIN users u ON u.id = w.doctor_id AND u.role = 'doctor'
		ORDER BY w.doctor_id, w.start_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PublishedAvailability
	var current *PublishedAvailability
	for rows.Next() {
		var (
			doctorID uuid.UUID
			w        TimeWindow
			u        UserRef
		)
		if err := rows.Scan(&doctorID, &w.StartTime, &w.EndTime,
			&u.FullName, &u.Email, &u.Phone, &u.CountryCode, &u.TherapyCategory, &u.Founder); err != nil {
			return nil, err
		}
		u.ID = doctorID
		u.Role = "doctor"

		if current == nil || current.DoctorID != doctorID {
			result = append(result, PublishedAvailability{DoctorID: doctorID, Doctor: &u})
			current = &result[len(result)-1]
		}
		current.Windows = append(current.Windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ListDoctorsWithWindow(ctx context.Context, window TimeWindow) ([]UserRef, error) {
	rows, err := r.db.Query(ctx, `
		SELECT u.id, u.full_name, u.email, u.phone, u.country_code, u.role, u.therapy_category, u.founder
		FROM published_windows w
		JOIN users u ON u.id = w.doctor_id AND u.role = 'doctor'
		WHERE w.start_time = $1 AND w.end_time = $2
		ORDER BY u.id
	`, window.StartTime, window.EndTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []UserRef
	for rows.Next() {
		var u UserRef
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &u.Phone, &u.CountryCode, &u.Role, &u.TherapyCategory, &u.Founder); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, date, start_time, end_time, doctor_id, patient_id, bundle_id, status, founder, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'scheduled', $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.Date, appt.Window.StartTime, appt.Window.EndTime, appt.DoctorID, appt.PatientID, appt.BundleID, appt.Founder)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeSlotConstraint {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveForDate(ctx context.Context, date time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE date = $1 AND status IN ('scheduled', 'completed')
	`, date)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListBookedDoctors(ctx context.Context, date time.Time, window TimeWindow) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT doctor_id
		FROM appointments
		WHERE date = $1 AND start_time = $2 AND end_time = $3
		  AND status IN ('scheduled', 'completed')
	`, date, window.StartTime, window.EndTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) HasActiveAppointment(ctx context.Context, doctorID uuid.UUID, date time.Time, window TimeWindow) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND date = $2 AND start_time = $3 AND end_time = $4
			  AND status IN ('scheduled', 'completed')
		)
	`, doctorID, date, window.StartTime, window.EndTime).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) LatestByPatient(ctx context.Context, patientID uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date DESC, created_at DESC
		LIMIT 1
	`, patientID)
	return scanAppointment(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY created_at DESC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time, status AppointmentStatus) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND date >= $2 AND date <= $3 AND status = $4
		ORDER BY date, start_time
	`, doctorID, from, to, status)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) SetNotes(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET notes = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, notes)
	return scanAppointment(row)
}

func (r *PgRepository) SetMeetLink(ctx context.Context, id uuid.UUID, link string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET meet_link = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, link)
	return scanAppointment(row)
}

// Reminder sweep

func (r *PgRepository) FindDueForReminder(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	// Window times are UTC wall-clock. The AT TIME ZONE 'UTC' pins the
	// assembled timestamp to that before comparing against the timestamptz
	// band, independent of the server's TimeZone setting.
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND reminder_sent = false
		  AND (date + start_time::time) AT TIME ZONE 'UTC' >= $1
		  AND (date + start_time::time) AT TIME ZONE 'UTC' <= $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent = true,
		    updated_at = now()
		WHERE id = $1 AND reminder_sent = false
	`, id)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// Bundles

func (r *PgRepository) GetBundleByID(ctx context.Context, id uuid.UUID) (*Bundle, error) {
	var b Bundle
	err := r.db.QueryRow(ctx, `
		SELECT id, patient_id, total_sessions, sessions_remaining, created_at, updated_at
		FROM bundles
		WHERE id = $1
	`, id).Scan(&b.ID, &b.PatientID, &b.TotalSessions, &b.SessionsRemaining, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBundleNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *PgRepository) ConsumeBundleSession(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bundles
		SET sessions_remaining = sessions_remaining - 1,
		    updated_at = now()
		WHERE id = $1 AND sessions_remaining > 0
	`, id)
	if err != nil {
		return fmt.Errorf("consume bundle session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBundleExhausted
	}
	return nil
}

// Event log

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
