package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lesson-queue-api/internal/models"
)

const eventColumns = `e.id, e.school_id, e.lesson_id, e.booking_id, e.teacher_id, t.username AS teacher_username, e.date, e.duration, e.location, e.status, e.capacity, e.commission, e.revenue, e.package_name, e.equipment, e.created_at, e.updated_at`

// EventRepository manages persistence for lesson events.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// ListByRange returns the school's events starting in [from, to), ordered by teacher then start.
func (r *EventRepository) ListByRange(ctx context.Context, schoolID string, from, to time.Time) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e JOIN teachers t ON t.id = e.teacher_id WHERE e.school_id = $1 AND e.date >= $2 AND e.date < $3 ORDER BY e.teacher_id ASC, e.date ASC`
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, schoolID, from, to); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// FindByID fetches an event of the school by id.
func (r *EventRepository) FindByID(ctx context.Context, schoolID, id string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e JOIN teachers t ON t.id = e.teacher_id WHERE e.school_id = $1 AND e.id = $2`
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, schoolID, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	now := time.Now().UTC()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = models.EventStatusPlanned
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	const query = `INSERT INTO events (id, school_id, lesson_id, booking_id, teacher_id, date, duration, location, status, capacity, commission, revenue, package_name, equipment, created_at, updated_at) VALUES (:id, :school_id, :lesson_id, :booking_id, :teacher_id, :date, :duration, :location, :status, :capacity, :commission, :revenue, :package_name, :equipment, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Update applies a partial update. sql.ErrNoRows is returned when the event does not exist.
func (r *EventRepository) Update(ctx context.Context, schoolID string, patch models.EventPatch) error {
	return r.applyPatch(ctx, r.db, schoolID, patch, time.Now().UTC())
}

// Delete removes an event. sql.ErrNoRows is returned when the event does not exist.
func (r *EventRepository) Delete(ctx context.Context, schoolID, id string) error {
	return r.deleteOne(ctx, r.db, schoolID, id)
}

// BulkApply writes every patch and deletion in one transaction. Any missing
// row rolls the whole batch back.
func (r *EventRepository) BulkApply(ctx context.Context, schoolID string, patches []models.EventPatch, deletions []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk apply events: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, patch := range patches {
		if err = r.applyPatch(ctx, tx, schoolID, patch, now); err != nil {
			return fmt.Errorf("event %s: %w", patch.ID, err)
		}
	}
	for _, id := range deletions {
		if err = r.deleteOne(ctx, tx, schoolID, id); err != nil {
			return fmt.Errorf("event %s: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk apply events: %w", err)
	}
	return nil
}

// BulkDelete removes the listed events and returns how many existed.
func (r *EventRepository) BulkDelete(ctx context.Context, schoolID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE school_id = $1 AND id = ANY($2)`, schoolID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("bulk delete events: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk delete events rows: %w", err)
	}
	return affected, nil
}

// BulkUpdateStatus sets status on the listed events and returns how many were updated.
func (r *EventRepository) BulkUpdateStatus(ctx context.Context, schoolID string, ids []string, status models.EventStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `UPDATE events SET status = $1, updated_at = $2 WHERE school_id = $3 AND id = ANY($4)`, status, time.Now().UTC(), schoolID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("bulk update event status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk update event status rows: %w", err)
	}
	return affected, nil
}

// DaysOf returns the distinct days (UTC) touched by the listed events.
func (r *EventRepository) DaysOf(ctx context.Context, schoolID string, ids []string) ([]time.Time, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var days []time.Time
	const query = `SELECT DISTINCT date_trunc('day', date) AS day FROM events WHERE school_id = $1 AND id = ANY($2) ORDER BY day`
	if err := r.db.SelectContext(ctx, &days, query, schoolID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list event days: %w", err)
	}
	return days, nil
}

func (r *EventRepository) applyPatch(ctx context.Context, exec sqlx.ExtContext, schoolID string, patch models.EventPatch, now time.Time) error {
	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Date != nil {
		add("date", patch.Date.UTC())
	}
	if patch.Duration != nil {
		add("duration", *patch.Duration)
	}
	if patch.Location != nil {
		add("location", *patch.Location)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", now)

	args = append(args, patch.ID, schoolID)
	query := fmt.Sprintf("UPDATE events SET %s WHERE id = $%d AND school_id = $%d", strings.Join(sets, ", "), len(args)-1, len(args))
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return requireAffected(res)
}

func (r *EventRepository) deleteOne(ctx context.Context, exec sqlx.ExtContext, schoolID, id string) error {
	res, err := exec.ExecContext(ctx, `DELETE FROM events WHERE id = $1 AND school_id = $2`, id, schoolID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
