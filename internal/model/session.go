package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionInstance конкретный слот, на который можно записаться
type SessionInstance struct {
	ID               int64      `json:"id"`
	MentorID         int64      `json:"mentor_id"`
	BatchID          uuid.UUID  `json:"batch_id"` // идентификатор пачки генерации
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          time.Time  `json:"end_time"`
	Capacity         int        `json:"capacity"`
	Price            int64      `json:"price"` // в минимальных единицах валюты
	Currency         string     `json:"currency"`
	ProgramID        *int64     `json:"program_id"`        // nil - сессия не входит в программу
	RequiresApproval bool       `json:"requires_approval"` // ментор подтверждает запись вручную
	CreatedAt        time.Time  `json:"created_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

// InProgram проверяет что сессия входит в программу
func (s *SessionInstance) InProgram() bool {
	return s.ProgramID != nil
}
