package model

import "time"

// Program набор сессий с общей ценой, оплачивается один раз
type Program struct {
	ID         int64     `json:"id"`
	MentorID   int64     `json:"mentor_id"`
	Title      string    `json:"title"`
	TotalPrice int64     `json:"total_price"` // в минимальных единицах валюты
	Currency   string    `json:"currency"`
	CreatedAt  time.Time `json:"created_at"`
}
