// Package schedule раскрывает еженедельную доступность ментора в конкретные слоты.
// Пакет не делает I/O и не читает системные часы: referenceNow всегда передаётся явно.
package schedule

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/google/uuid"
)

const (
	MinHorizonWeeks = 1
	MaxHorizonWeeks = 12
)

// Fallback явная пара start/end, используется когда правил нет
type Fallback struct {
	Start       time.Time
	End         time.Time
	Capacity    int
	Title       string
	Description string
}

// Slot сгенерированный интервал до сохранения
type Slot struct {
	Start       time.Time
	End         time.Time
	Capacity    int
	Title       string
	Description string
}

// Generate раскрывает правила на horizonWeeks недель вперёд от referenceNow.
// Время суток применяется в часовом поясе referenceNow.
func Generate(rules []model.AvailabilityRule, horizonWeeks int, referenceNow time.Time, fallback *Fallback) ([]Slot, error) {
	if horizonWeeks < MinHorizonWeeks || horizonWeeks > MaxHorizonWeeks {
		return nil, model.NewValidationError("horizon_weeks",
			fmt.Sprintf("must be between %d and %d", MinHorizonWeeks, MaxHorizonWeeks))
	}

	if len(rules) == 0 {
		if fallback == nil || !fallback.End.After(fallback.Start) {
			return []Slot{}, nil
		}
		return []Slot{{
			Start:       fallback.Start,
			End:         fallback.End,
			Capacity:    max(fallback.Capacity, 1),
			Title:       fallback.Title,
			Description: fallback.Description,
		}}, nil
	}

	slots := make([]Slot, 0, len(rules)*horizonWeeks)
	for _, rule := range rules {
		if rule.DayOfWeek < 0 || rule.DayOfWeek > 6 {
			continue
		}

		for offset := 0; offset < horizonWeeks; offset++ {
			date := nextWeekday(referenceNow.AddDate(0, 0, offset*7), time.Weekday(rule.DayOfWeek))
			start := rule.StartTime.On(date)
			end := rule.EndTime.On(date)

			// Кривые правила, проскочившие валидацию, пропускаем
			if !end.After(start) {
				continue
			}

			slots = append(slots, Slot{
				Start:       start,
				End:         end,
				Capacity:    rule.Capacity,
				Title:       rule.Title,
				Description: rule.Description,
			})
		}
	}

	slices.SortStableFunc(slots, func(a, b Slot) int {
		return cmp.Compare(a.Start.UnixNano(), b.Start.UnixNano())
	})

	return slots, nil
}

// nextWeekday ближайшая дата с нужным днём недели, включая саму from
func nextWeekday(from time.Time, target time.Weekday) time.Time {
	delta := (int(target) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, delta)
}

// Template общие атрибуты сессий одной пачки
type Template struct {
	MentorID         int64
	BatchID          uuid.UUID
	Price            int64
	Currency         string
	ProgramID        *int64
	RequiresApproval bool
}

// ToInstances превращает слоты в SessionInstance для сохранения
func ToInstances(slots []Slot, tpl Template) []*model.SessionInstance {
	instances := make([]*model.SessionInstance, 0, len(slots))
	for _, slot := range slots {
		instances = append(instances, &model.SessionInstance{
			MentorID:         tpl.MentorID,
			BatchID:          tpl.BatchID,
			Title:            slot.Title,
			Description:      slot.Description,
			StartTime:        slot.Start,
			EndTime:          slot.End,
			Capacity:         slot.Capacity,
			Price:            tpl.Price,
			Currency:         tpl.Currency,
			ProgramID:        tpl.ProgramID,
			RequiresApproval: tpl.RequiresApproval,
		})
	}
	return instances
}
