package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellness/portal/internal/platform/db"
	"github.com/wellness/portal/pkg/pagination"
)

const pgUniqueViolation = "23505"

type pgRepo struct{ pool *pgxpool.Pool }

func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

func (r *pgRepo) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, name, email, phone, compliance_status, compliance_score,
	assigned_date, version, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p      Patient
		id     uuid.UUID
		status string
	)
	err := row.Scan(&id, &p.Name, &p.Email, &p.Phone, &status, &p.ComplianceScore,
		&p.AssignedDate, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ID = id.String()
	p.ComplianceStatus = ComplianceStatus(status)
	return &p, nil
}

func (r *pgRepo) Create(ctx context.Context, p *Patient) error {
	id := uuid.New()
	goalIDs := newIDs(len(p.Goals))
	logIDs := newIDs(len(p.DailyLogs))
	reminderIDs := newIDs(len(p.Reminders))
	noteIDs := newIDs(len(p.ComplianceNotes))

	err := db.InTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO patient (id, name, email, phone, compliance_status, compliance_score,
				assigned_date, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			id, p.Name, p.Email, p.Phone, string(p.ComplianceStatus), p.ComplianceScore,
			p.AssignedDate, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, g := range p.Goals {
			batch.Queue(`INSERT INTO patient_goal (id, patient_id, title, description, target_value,
				current_value, unit, deadline, status) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				goalIDs[i], id, g.Title, g.Description, g.TargetValue, g.CurrentValue, g.Unit, g.Deadline, string(g.Status))
		}
		for i, l := range p.DailyLogs {
			batch.Queue(`INSERT INTO patient_daily_log (id, patient_id, date, steps, sleep_hours, notes)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				logIDs[i], id, l.Date, l.Steps, l.SleepHours, nullable(l.Notes))
		}
		for i, rm := range p.Reminders {
			batch.Queue(`INSERT INTO patient_reminder (id, patient_id, title, description, due_date,
				completed, priority) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				reminderIDs[i], id, rm.Title, rm.Description, rm.DueDate, rm.Completed, string(rm.Priority))
		}
		for i, n := range p.ComplianceNotes {
			batch.Queue(`INSERT INTO patient_compliance_note (id, patient_id, note, created_at, created_by)
				VALUES ($1,$2,$3,$4,$5)`,
				noteIDs[i], id, n.Note, n.CreatedAt, n.CreatedBy)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert patient: %w", err)
	}

	// IDs reach the caller only once the transaction has committed.
	for i := range p.Goals {
		p.Goals[i].ID = goalIDs[i]
	}
	for i := range p.DailyLogs {
		p.DailyLogs[i].ID = logIDs[i]
	}
	for i := range p.Reminders {
		p.Reminders[i].ID = reminderIDs[i]
	}
	for i := range p.ComplianceNotes {
		p.ComplianceNotes[i].ID = noteIDs[i]
	}
	p.ID = id.String()
	if p.Goals == nil {
		p.Goals = []Goal{}
	}
	if p.DailyLogs == nil {
		p.DailyLogs = []DailyLog{}
	}
	if p.Reminders == nil {
		p.Reminders = []Reminder{}
	}
	if p.ComplianceNotes == nil {
		p.ComplianceNotes = []ComplianceNote{}
	}
	return nil
}

func (r *pgRepo) List(ctx context.Context, f ListFilter) ([]*Patient, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Compliance != "" {
		args = append(args, string(f.Compliance))
		where = append(where, fmt.Sprintf("compliance_status = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(`(name ILIKE $%d ESCAPE '\' OR email ILIKE $%d ESCAPE '\')`, n, n))
	}

	query := `SELECT ` + patientCols + ` FROM patient`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq`
	if clause := (pagination.Params{Limit: f.Limit, Offset: f.Offset}).SQL(); clause != "" {
		query += ` ` + clause
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return out, nil
}

func (r *pgRepo) GetByID(ctx context.Context, id string) (*Patient, error) {
	pid, err := parsePatientUUID(id)
	if err != nil {
		return nil, err
	}

	var p *Patient
	err = db.InTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		p, err = scanPatient(tx.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, pid))
		if err != nil {
			return err
		}
		if p.Goals, err = r.goals(ctx, tx, pid); err != nil {
			return err
		}
		if p.DailyLogs, err = r.dailyLogs(ctx, tx, pid); err != nil {
			return err
		}
		if p.Reminders, err = r.reminders(ctx, tx, pid); err != nil {
			return err
		}
		p.ComplianceNotes, err = r.notes(ctx, tx, pid)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

func (r *pgRepo) goals(ctx context.Context, q db.Querier, pid uuid.UUID) ([]Goal, error) {
	rows, err := q.Query(ctx, `SELECT id, title, description, target_value, current_value, unit, deadline, status
		FROM patient_goal WHERE patient_id = $1 ORDER BY seq`, pid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Goal{}
	for rows.Next() {
		var (
			g      Goal
			id     uuid.UUID
			status string
		)
		if err := rows.Scan(&id, &g.Title, &g.Description, &g.TargetValue, &g.CurrentValue, &g.Unit, &g.Deadline, &status); err != nil {
			return nil, err
		}
		g.ID = id.String()
		g.Status = GoalStatus(status)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *pgRepo) dailyLogs(ctx context.Context, q db.Querier, pid uuid.UUID) ([]DailyLog, error) {
	rows, err := q.Query(ctx, `SELECT id, date, steps, sleep_hours, notes
		FROM patient_daily_log WHERE patient_id = $1 ORDER BY seq`, pid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []DailyLog{}
	for rows.Next() {
		var (
			l     DailyLog
			id    uuid.UUID
			notes *string
		)
		if err := rows.Scan(&id, &l.Date, &l.Steps, &l.SleepHours, &notes); err != nil {
			return nil, err
		}
		l.ID = id.String()
		if notes != nil {
			l.Notes = *notes
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *pgRepo) reminders(ctx context.Context, q db.Querier, pid uuid.UUID) ([]Reminder, error) {
	rows, err := q.Query(ctx, `SELECT id, title, description, due_date, completed, priority
		FROM patient_reminder WHERE patient_id = $1 ORDER BY seq`, pid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Reminder{}
	for rows.Next() {
		var (
			rm       Reminder
			id       uuid.UUID
			priority string
		)
		if err := rows.Scan(&id, &rm.Title, &rm.Description, &rm.DueDate, &rm.Completed, &priority); err != nil {
			return nil, err
		}
		rm.ID = id.String()
		rm.Priority = Priority(priority)
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (r *pgRepo) notes(ctx context.Context, q db.Querier, pid uuid.UUID) ([]ComplianceNote, error) {
	rows, err := q.Query(ctx, `SELECT id, note, created_at, created_by
		FROM patient_compliance_note WHERE patient_id = $1 ORDER BY seq`, pid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ComplianceNote{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func scanNote(row pgx.Row) (*ComplianceNote, error) {
	var (
		n  ComplianceNote
		id uuid.UUID
	)
	if err := row.Scan(&id, &n.Note, &n.CreatedAt, &n.CreatedBy); err != nil {
		return nil, err
	}
	n.ID = id.String()
	return &n, nil
}

// AppendComplianceNote touches the parent row and inserts the note in one
// statement; no row comes back when the patient does not exist.
func (r *pgRepo) AppendComplianceNote(ctx context.Context, patientID string, n *ComplianceNote) (*ComplianceNote, error) {
	pid, err := parsePatientUUID(patientID)
	if err != nil {
		return nil, err
	}

	stored, err := scanNote(r.conn(ctx).QueryRow(ctx, `
		WITH touched AS (
			UPDATE patient SET updated_at = $4, version = version + 1
			WHERE id = $2
			RETURNING id
		)
		INSERT INTO patient_compliance_note (id, patient_id, note, created_at, created_by)
		SELECT $1, touched.id, $3, $4, $5 FROM touched
		RETURNING id, note, created_at, created_by`,
		uuid.New(), pid, n.Note, n.CreatedAt, n.CreatedBy))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("append compliance note to %s: %w", patientID, err)
	}
	return stored, nil
}

func (r *pgRepo) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient`)
	if err != nil {
		return 0, fmt.Errorf("delete patients: %w", err)
	}
	return tag.RowsAffected(), nil
}

// parsePatientUUID accepts only the canonical lowercase dashed form, so the
// id rendered back equals the id requested.
func parsePatientUUID(id string) (uuid.UUID, error) {
	pid, err := uuid.Parse(id)
	if err != nil || pid.String() != id {
		return uuid.Nil, ErrInvalidID
	}
	return pid, nil
}

func newIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	return ids
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// escapeLike quotes LIKE wildcards so search terms match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
