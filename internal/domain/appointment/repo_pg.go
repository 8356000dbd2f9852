package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinicflow/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres-backed Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return &UnavailableError{Err: err}
	}
	defer tx.Rollback(ctx)

	if err := fn(db.ContextWithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return &UnavailableError{Err: err}
	}
	return nil
}

const apptCols = `id, doctor_id, patient_id, scheduled_at, status, fee_cents, reason, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.ScheduledAt,
		&a.Status, &a.FeeCents, &a.Reason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapPGError(err)
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, doctor_id, patient_id, scheduled_at, status, fee_cents, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.PatientID, a.ScheduledAt, a.Status, a.FeeCents, a.Reason).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return mapPGErrorForSlot(err, a.DoctorID, a.ScheduledAt)
	}
	return nil
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment, expect Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET patient_id=$3, scheduled_at=$4, status=$5, fee_cents=$6, reason=$7, updated_at=NOW()
		WHERE id = $1 AND status = $2`,
		a.ID, expect, a.PatientID, a.ScheduledAt, a.Status, a.FeeCents, a.Reason)
	if err != nil {
		return mapPGErrorForSlot(err, a.DoctorID, a.ScheduledAt)
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

func (r *repoPG) FindOpenSlot(ctx context.Context, doctorID uuid.UUID, at time.Time) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE doctor_id = $1 AND scheduled_at = $2 AND status = ANY($3)
		ORDER BY updated_at ASC LIMIT 1`,
		doctorID, at, openStatuses()))
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter) ([]*Appointment, int, error) {
	query := `SELECT ` + apptCols + ` FROM appointment WHERE doctor_id = $1`
	countQuery := `SELECT COUNT(*) FROM appointment WHERE doctor_id = $1`
	args := []interface{}{doctorID}
	idx := 2

	if len(f.Statuses) > 0 {
		clause := fmt.Sprintf(` AND status = ANY($%d)`, idx)
		query += clause
		countQuery += clause
		args = append(args, statusInts(f.Statuses))
		idx++
	}
	if !f.From.IsZero() {
		clause := fmt.Sprintf(` AND scheduled_at >= $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, f.From)
		idx++
	}
	if !f.To.IsZero() {
		clause := fmt.Sprintf(` AND scheduled_at < $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, f.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, mapPGError(err)
	}

	query += fmt.Sprintf(` ORDER BY scheduled_at ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	items, err := r.queryMany(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, mapPGError(err)
	}
	items, err := r.queryMany(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE patient_id = $1
		ORDER BY scheduled_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListQueue(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	return r.queryMany(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE doctor_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3 AND status = ANY($4)
		ORDER BY scheduled_at ASC`,
		doctorID, from, to, occupyingStatuses())
}

func (r *repoPG) queryMany(ctx context.Context, sql string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, mapPGError(err)
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPGError(err)
	}
	return items, nil
}

func statusInts(statuses []Status) []int32 {
	out := make([]int32, len(statuses))
	for i, s := range statuses {
		out[i] = int32(s)
	}
	return out
}

func openStatuses() []int32 {
	return statusInts([]Status{
		StatusAvailable, StatusReopenedFromCancellation, StatusReopenedFromReschedule,
	})
}

func occupyingStatuses() []int32 {
	return statusInts([]Status{
		StatusBooked, StatusInProgress, StatusCompleted, StatusPending,
	})
}

func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return &UnavailableError{Err: err}
}

// mapPGErrorForSlot additionally translates a unique violation on the
// active-slot index into a SlotConflictError.
func mapPGErrorForSlot(err error, doctorID uuid.UUID, at time.Time) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &SlotConflictError{DoctorID: doctorID, ScheduledAt: at.Format(time.RFC3339)}
	}
	return mapPGError(err)
}
