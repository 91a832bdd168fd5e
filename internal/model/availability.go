package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// В ошибках используем имена из json тегов
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ClockTime время суток без даты (настенные часы ментора)
type ClockTime struct {
	Hour   int `json:"hour" validate:"min=0,max=23"`
	Minute int `json:"minute" validate:"min=0,max=59"`
}

// Minutes возвращает количество минут от начала суток
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// On применяет время суток к дате в её часовом поясе
func (c ClockTime) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, date.Location())
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// AvailabilityRule правило еженедельной доступности ментора.
// Не хранится отдельно, только раскрывается в SessionInstance.
type AvailabilityRule struct {
	DayOfWeek   int       `json:"day_of_week" validate:"min=0,max=6"` // 0 = Sunday, 6 = Saturday
	StartTime   ClockTime `json:"start_time"`
	EndTime     ClockTime `json:"end_time"`
	Capacity    int       `json:"capacity" validate:"min=1"`
	Title       string    `json:"title,omitempty" validate:"max=200"`
	Description string    `json:"description,omitempty" validate:"max=2000"`
}

// Validate проверяет правило; endTime <= startTime отклоняется, а не пропускается
func (r AvailabilityRule) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return NewValidationError(verrs[0].Field(), verrs[0].Tag())
		}
		return NewValidationError("", err.Error())
	}

	if r.EndTime.Minutes() <= r.StartTime.Minutes() {
		return NewValidationError("end_time", "must be after start_time on the same day")
	}

	return nil
}
