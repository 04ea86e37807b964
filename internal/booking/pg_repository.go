package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same query
// methods serve inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &PgRepository{pool: r.pool, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Name,
		&d.Email,
		&d.Specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot

	err := row.Scan(
		&s.ID,
		&s.AvailabilityID,
		&s.StartTime,
		&s.EndTime,
		&s.Booked,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Location.Name,
		&a.Location.Address,
		&a.Day,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.Reason,
		&a.Notes,
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

const appointmentColumns = `id, patient_id, doctor_id, location_name, location_address,
		day, start_time, end_time, status, reason, notes, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, user_id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE user_id = $1
	`, userID)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, user_id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, user_id, name, email, specialty, created_at, updated_at
		FROM doctors
		WHERE user_id = $1
	`, userID)
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, user_id, name, email, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) DoctorHasLocation(ctx context.Context, doctorID uuid.UUID, loc Location) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM doctor_locations
			WHERE doctor_id = $1 AND name = $2 AND address = $3
		)
	`, doctorID, loc.Name, loc.Address).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check doctor location: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) CreateAvailability(ctx context.Context, av *Availability) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO availabilities (id, doctor_id, location_name, location_address, day, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, av.ID, av.DoctorID, av.Location.Name, av.Location.Address, av.Day)
	if err != nil {
		return fmt.Errorf("insert availability: %w", err)
	}

	for _, slot := range av.Slots {
		_, err := r.q.Exec(ctx, `
			INSERT INTO time_slots (id, availability_id, start_time, end_time, booked)
			VALUES ($1, $2, $3, $4, false)
		`, slot.ID, av.ID, slot.StartTime, slot.EndTime)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return ErrDuplicateSlot
			}
			return fmt.Errorf("insert time slot: %w", err)
		}
	}

	return nil
}

func (r *PgRepository) ListDoctorAvailability(ctx context.Context, doctorID uuid.UUID, from time.Time, until *time.Time) ([]Availability, error) {
	rows, err := r.q.Query(ctx, `
		SELECT a.id, a.doctor_id, a.location_name, a.location_address, a.day, a.created_at,
		       ts.id, ts.start_time, ts.end_time, ts.booked
		FROM availabilities a
		LEFT JOIN time_slots ts ON ts.availability_id = a.id
		WHERE a.doctor_id = $1
		  AND a.day >= $2
		  AND ($3::timestamptz IS NULL OR a.day < $3)
		ORDER BY a.day, a.id, ts.start_time
	`, doctorID, from, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Availability
	byID := make(map[uuid.UUID]int)

	for rows.Next() {
		var av Availability
		var slotID *uuid.UUID
		var startTime, endTime *string
		var booked *bool

		err := rows.Scan(
			&av.ID, &av.DoctorID, &av.Location.Name, &av.Location.Address, &av.Day, &av.CreatedAt,
			&slotID, &startTime, &endTime, &booked,
		)
		if err != nil {
			return nil, err
		}

		idx, seen := byID[av.ID]
		if !seen {
			result = append(result, av)
			idx = len(result) - 1
			byID[av.ID] = idx
		}
		if slotID != nil {
			result[idx].Slots = append(result[idx].Slots, TimeSlot{
				ID:             *slotID,
				AvailabilityID: av.ID,
				StartTime:      *startTime,
				EndTime:        *endTime,
				Booked:         *booked,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// FindFreeSlot locates the free slot matching the request inside the day
// range. FOR UPDATE blocks a concurrent transaction targeting the same row
// until this one commits, so the loser re-evaluates booked = false and
// finds nothing.
func (r *PgRepository) FindFreeSlot(ctx context.Context, doctorID uuid.UUID, loc Location, dayStart, dayEnd time.Time, startTime, endTime string) (*TimeSlot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT ts.id, ts.availability_id, ts.start_time, ts.end_time, ts.booked
		FROM time_slots ts
		JOIN availabilities a ON a.id = ts.availability_id
		WHERE a.doctor_id = $1
		  AND a.location_name = $2
		  AND a.location_address = $3
		  AND a.day >= $4 AND a.day < $5
		  AND ts.start_time = $6
		  AND ts.end_time = $7
		  AND ts.booked = false
		FOR UPDATE OF ts
	`, doctorID, loc.Name, loc.Address, dayStart, dayEnd, startTime, endTime)
	return scanSlot(row)
}

func (r *PgRepository) SetSlotBooked(ctx context.Context, slotID uuid.UUID, booked bool) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE time_slots SET booked = $2 WHERE id = $1
	`, slotID, booked)
	if err != nil {
		return fmt.Errorf("set slot booked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, doctorID uuid.UUID, loc Location, dayStart, dayEnd time.Time, startTime, endTime string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE time_slots ts
		SET booked = false
		FROM availabilities a
		WHERE ts.availability_id = a.id
		  AND a.doctor_id = $1
		  AND a.location_name = $2
		  AND a.location_address = $3
		  AND a.day >= $4 AND a.day < $5
		  AND ts.start_time = $6
		  AND ts.end_time = $7
	`, doctorID, loc.Name, loc.Address, dayStart, dayEnd, startTime, endTime)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteFreeSlot(ctx context.Context, doctorID, slotID uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM time_slots ts
		USING availabilities a
		WHERE ts.id = $2
		  AND ts.availability_id = a.id
		  AND a.doctor_id = $1
		  AND ts.booked = false
	`, doctorID, slotID)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish a booked slot from a missing or foreign one.
	var booked bool
	err = r.q.QueryRow(ctx, `
		SELECT ts.booked
		FROM time_slots ts
		JOIN availabilities a ON a.id = ts.availability_id
		WHERE ts.id = $2 AND a.doctor_id = $1
	`, doctorID, slotID).Scan(&booked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSlotNotFound
	}
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if booked {
		return ErrSlotBooked
	}
	return ErrSlotNotFound
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) error {
	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, location_name, location_address,
			day, start_time, end_time, status, reason, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.Location.Name, appt.Location.Address,
		appt.Day, appt.StartTime, appt.EndTime, appt.Status, appt.Reason, appt.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	*appt = *created
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY day DESC, start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) FindScheduledEndedBefore(ctx context.Context, now time.Time) ([]Appointment, error) {
	dayStart, dayEnd := DayRange(now)
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND (day < $1 OR (day >= $1 AND day < $2 AND end_time <= $3))
	`, dayStart, dayEnd, now.Format("15:04"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
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
