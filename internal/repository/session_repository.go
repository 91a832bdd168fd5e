package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, mentor_id, batch_id, title, description, start_time, end_time,
	capacity, price, currency, program_id, requires_approval, created_at, deleted_at`

type SessionRepository struct {
	*base.Repository
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{Repository: base.NewRepository(pool)}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*model.SessionInstance, error) {
	var s model.SessionInstance
	err := row.Scan(
		&s.ID,
		&s.MentorID,
		&s.BatchID,
		&s.Title,
		&s.Description,
		&s.StartTime,
		&s.EndTime,
		&s.Capacity,
		&s.Price,
		&s.Currency,
		&s.ProgramID,
		&s.RequiresApproval,
		&s.CreatedAt,
		&s.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateBatch сохраняет сессии одной транзакцией; при любой ошибке не остаётся ни одной
func (r *SessionRepository) CreateBatch(ctx context.Context, instances []*model.SessionInstance) ([]int64, error) {
	query := `
		INSERT INTO sessions (mentor_id, batch_id, title, description, start_time, end_time,
			capacity, price, currency, program_id, requires_approval)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`

	ids := make([]int64, 0, len(instances))
	err := r.InTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, inst := range instances {
			batch.Queue(query,
				inst.MentorID,
				inst.BatchID,
				inst.Title,
				inst.Description,
				inst.StartTime,
				inst.EndTime,
				inst.Capacity,
				inst.Price,
				inst.Currency,
				inst.ProgramID,
				inst.RequiresApproval,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for _, inst := range instances {
			if err := results.QueryRow().Scan(&inst.ID, &inst.CreatedAt); err != nil {
				results.Close()
				return base.Classify(fmt.Errorf("insert session: %w", err))
			}
			ids = append(ids, inst.ID)
		}

		if err := results.Close(); err != nil {
			return base.Classify(fmt.Errorf("close batch: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create sessions: %w", err)
	}

	return ids, nil
}

// GetByID получает живую (не удалённую) сессию по ID
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.SessionInstance, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 AND deleted_at IS NULL`

	s, err := scanSession(r.Pool().QueryRow(ctx, query, id))
	if err != nil {
		return nil, base.Classify(fmt.Errorf("get session by id: %w", err))
	}

	return s, nil
}

// ListByMentor сессии ментора по возрастанию времени начала
func (r *SessionRepository) ListByMentor(ctx context.Context, mentorID int64) ([]*model.SessionInstance, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE mentor_id = $1 AND deleted_at IS NULL
		ORDER BY start_time, id
	`

	rows, err := r.Pool().Query(ctx, query, mentorID)
	if err != nil {
		return nil, base.Classify(fmt.Errorf("get sessions by mentor: %w", err))
	}
	defer rows.Close()

	var sessions []*model.SessionInstance
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, base.Classify(fmt.Errorf("iterate sessions: %w", err))
	}

	return sessions, nil
}

// UpdateCapacity меняет вместимость под блокировкой строки сессии, чтобы не гоняться с Reserve
func (r *SessionRepository) UpdateCapacity(ctx context.Context, id int64, capacity int) (*model.SessionInstance, error) {
	var updated *model.SessionInstance

	err := r.InTx(ctx, func(tx pgx.Tx) error {
		active, err := lockSessionAndCountActive(ctx, tx, id)
		if err != nil {
			return err
		}

		if capacity < active {
			return fmt.Errorf("session %d has %d active bookings: %w", id, active, model.ErrConflict)
		}

		query := `UPDATE sessions SET capacity = $2 WHERE id = $1 RETURNING ` + sessionColumns
		updated, err = scanSession(tx.QueryRow(ctx, query, id, capacity))
		if err != nil {
			return base.Classify(fmt.Errorf("update capacity: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete мягко удаляет сессию без активных броней; история броней остаётся
func (r *SessionRepository) Delete(ctx context.Context, id int64) error {
	return r.InTx(ctx, func(tx pgx.Tx) error {
		active, err := lockSessionAndCountActive(ctx, tx, id)
		if err != nil {
			return err
		}

		if active > 0 {
			return fmt.Errorf("session %d has %d active bookings: %w", id, active, model.ErrConflict)
		}

		if _, err := tx.Exec(ctx, `UPDATE sessions SET deleted_at = NOW() WHERE id = $1`, id); err != nil {
			return base.Classify(fmt.Errorf("delete session: %w", err))
		}
		return nil
	})
}

// lockSessionAndCountActive блокирует строку сессии (FOR UPDATE) и считает активные брони
func lockSessionAndCountActive(ctx context.Context, tx pgx.Tx, sessionID int64) (int, error) {
	var locked int64
	err := tx.QueryRow(ctx,
		`SELECT id FROM sessions WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`,
		sessionID,
	).Scan(&locked)
	if err != nil {
		return 0, base.Classify(fmt.Errorf("lock session: %w", err))
	}

	var active int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings WHERE session_id = $1 AND status IN ('pending', 'confirmed')`,
		sessionID,
	).Scan(&active)
	if err != nil {
		return 0, base.Classify(fmt.Errorf("count active bookings: %w", err))
	}

	return active, nil
}
