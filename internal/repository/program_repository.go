package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProgramRepository struct {
	*base.Repository
}

func NewProgramRepository(pool *pgxpool.Pool) *ProgramRepository {
	return &ProgramRepository{Repository: base.NewRepository(pool)}
}

// Create создаёт программу
func (r *ProgramRepository) Create(ctx context.Context, p *model.Program) error {
	query := `
		INSERT INTO programs (mentor_id, title, total_price, currency)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.Pool().QueryRow(ctx, query,
		p.MentorID,
		p.Title,
		p.TotalPrice,
		p.Currency,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return base.Classify(fmt.Errorf("create program: %w", err))
	}

	return nil
}

// GetByID получает программу по ID
func (r *ProgramRepository) GetByID(ctx context.Context, id int64) (*model.Program, error) {
	query := `
		SELECT id, mentor_id, title, total_price, currency, created_at
		FROM programs
		WHERE id = $1
	`

	var p model.Program
	err := r.Pool().QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.MentorID,
		&p.Title,
		&p.TotalPrice,
		&p.Currency,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, base.Classify(fmt.Errorf("get program by id: %w", err))
	}

	return &p, nil
}
