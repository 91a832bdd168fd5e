package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

const chargeColumns = `key, booking_id, mentee_id, session_id, program_id, amount, currency, status,
	redirect_url, client_secret, processor_ref, created_at, updated_at`

// ChargeRepository попытки оплаты, ключ идемпотентности - первичный ключ
type ChargeRepository struct {
	*base.Repository
}

func NewChargeRepository(pool *pgxpool.Pool) *ChargeRepository {
	return &ChargeRepository{Repository: base.NewRepository(pool)}
}

func scanCharge(row scanner) (*model.ChargeIntent, error) {
	var c model.ChargeIntent
	err := row.Scan(
		&c.Key,
		&c.BookingID,
		&c.MenteeID,
		&c.SessionID,
		&c.ProgramID,
		&c.Amount,
		&c.Currency,
		&c.Status,
		&c.RedirectURL,
		&c.ClientSecret,
		&c.ProcessorRef,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByKey получает попытку оплаты по ключу
func (r *ChargeRepository) GetByKey(ctx context.Context, key string) (*model.ChargeIntent, error) {
	query := `SELECT ` + chargeColumns + ` FROM charge_intents WHERE key = $1`

	c, err := scanCharge(r.Pool().QueryRow(ctx, query, key))
	if err != nil {
		return nil, base.Classify(fmt.Errorf("get charge intent: %w", err))
	}

	return c, nil
}

// Save вставляет попытку; при гонке двух запросов с одним ключом выигрывает первая запись
func (r *ChargeRepository) Save(ctx context.Context, intent *model.ChargeIntent) (*model.ChargeIntent, error) {
	query := `
		INSERT INTO charge_intents (key, booking_id, mentee_id, session_id, program_id, amount,
			currency, status, redirect_url, client_secret, processor_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (key) DO NOTHING
	`

	_, err := r.Pool().Exec(ctx, query,
		intent.Key,
		intent.BookingID,
		intent.MenteeID,
		intent.SessionID,
		intent.ProgramID,
		intent.Amount,
		intent.Currency,
		intent.Status,
		intent.RedirectURL,
		intent.ClientSecret,
		intent.ProcessorRef,
	)
	if err != nil {
		return nil, base.Classify(fmt.Errorf("save charge intent: %w", err))
	}

	return r.GetByKey(ctx, intent.Key)
}

// MarkPaid переводит попытку в paid; повторный вызов возвращает уже оплаченную запись
func (r *ChargeRepository) MarkPaid(ctx context.Context, key, processorRef string) (*model.ChargeIntent, error) {
	query := `
		UPDATE charge_intents
		SET status = 'paid', processor_ref = $2, updated_at = NOW()
		WHERE key = $1 AND status <> 'paid'
	`

	if _, err := r.Pool().Exec(ctx, query, key, processorRef); err != nil {
		return nil, base.Classify(fmt.Errorf("mark charge paid: %w", err))
	}

	return r.GetByKey(ctx, key)
}

// MarkFailed переводит в failed только созданную попытку
func (r *ChargeRepository) MarkFailed(ctx context.Context, key string) (*model.ChargeIntent, error) {
	query := `
		UPDATE charge_intents
		SET status = 'failed', updated_at = NOW()
		WHERE key = $1 AND status = 'created'
	`

	if _, err := r.Pool().Exec(ctx, query, key); err != nil {
		return nil, base.Classify(fmt.Errorf("mark charge failed: %w", err))
	}

	return r.GetByKey(ctx, key)
}

// FindForProgram действующий платёж ученика за программу: оплаченный, иначе последний созданный
func (r *ChargeRepository) FindForProgram(ctx context.Context, menteeID, programID int64) (*model.ChargeIntent, error) {
	query := `
		SELECT ` + chargeColumns + `
		FROM charge_intents
		WHERE mentee_id = $1 AND program_id = $2 AND status <> 'failed'
		ORDER BY status = 'paid' DESC, created_at DESC
		LIMIT 1
	`

	c, err := scanCharge(r.Pool().QueryRow(ctx, query, menteeID, programID))
	if err != nil {
		return nil, base.Classify(fmt.Errorf("find program charge: %w", err))
	}

	return c, nil
}
