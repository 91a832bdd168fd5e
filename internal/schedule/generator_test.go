package schedule

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var msk = time.FixedZone("MSK", 3*60*60)

func mondayRule(capacity int) model.AvailabilityRule {
	return model.AvailabilityRule{
		DayOfWeek: int(time.Monday),
		StartTime: model.ClockTime{Hour: 9},
		EndTime:   model.ClockTime{Hour: 17},
		Capacity:  capacity,
	}
}

func TestGenerate_MondayFromWednesday(t *testing.T) {
	wednesday := time.Date(2026, time.October, 21, 14, 30, 0, 0, msk)

	slots, err := Generate([]model.AvailabilityRule{mondayRule(1)}, 2, wednesday, nil)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	assert.Equal(t, time.Date(2026, time.October, 26, 9, 0, 0, 0, msk), slots[0].Start)
	assert.Equal(t, time.Date(2026, time.October, 26, 17, 0, 0, 0, msk), slots[0].End)
	assert.Equal(t, time.Date(2026, time.November, 2, 9, 0, 0, 0, msk), slots[1].Start)
	assert.Equal(t, time.Date(2026, time.November, 2, 17, 0, 0, 0, msk), slots[1].End)
	for _, s := range slots {
		assert.Equal(t, time.Monday, s.Start.Weekday())
		assert.Equal(t, 1, s.Capacity)
	}
}

func TestGenerate_SameWeekdayIncludesReferenceDate(t *testing.T) {
	monday := time.Date(2026, time.October, 19, 7, 0, 0, 0, msk)

	slots, err := Generate([]model.AvailabilityRule{mondayRule(3)}, 1, monday, nil)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, time.Date(2026, time.October, 19, 9, 0, 0, 0, msk), slots[0].Start)
}

func TestGenerate_Deterministic(t *testing.T) {
	now := time.Date(2026, time.October, 21, 10, 0, 0, 0, msk)
	rules := []model.AvailabilityRule{
		mondayRule(2),
		{DayOfWeek: int(time.Friday), StartTime: model.ClockTime{Hour: 18, Minute: 30}, EndTime: model.ClockTime{Hour: 20}, Capacity: 5, Title: "Code review"},
	}

	first, err := Generate(rules, 4, now, nil)
	require.NoError(t, err)
	second, err := Generate(rules, 4, now, nil)
	require.NoError(t, err)

	require.Len(t, first, 8)
	assert.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		assert.False(t, first[i].Start.Before(first[i-1].Start), "slots must be ordered by start")
	}
}

func TestGenerate_SkipsMalformedRules(t *testing.T) {
	now := time.Date(2026, time.October, 21, 10, 0, 0, 0, msk)
	rules := []model.AvailabilityRule{
		{DayOfWeek: 2, StartTime: model.ClockTime{Hour: 12}, EndTime: model.ClockTime{Hour: 12}, Capacity: 1},
		{DayOfWeek: 3, StartTime: model.ClockTime{Hour: 15}, EndTime: model.ClockTime{Hour: 10}, Capacity: 1},
		{DayOfWeek: 9, StartTime: model.ClockTime{Hour: 9}, EndTime: model.ClockTime{Hour: 10}, Capacity: 1},
	}

	slots, err := Generate(rules, 3, now, nil)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerate_HorizonBounds(t *testing.T) {
	now := time.Date(2026, time.October, 21, 10, 0, 0, 0, msk)

	for _, weeks := range []int{0, -1, 13} {
		_, err := Generate([]model.AvailabilityRule{mondayRule(1)}, weeks, now, nil)
		assert.ErrorIs(t, err, model.ErrValidation, "weeks=%d", weeks)
	}

	slots, err := Generate([]model.AvailabilityRule{mondayRule(1)}, 12, now, nil)
	require.NoError(t, err)
	assert.Len(t, slots, 12)
}

func TestGenerate_Fallback(t *testing.T) {
	now := time.Date(2026, time.October, 21, 10, 0, 0, 0, msk)
	start := time.Date(2026, time.October, 22, 11, 0, 0, 0, msk)

	t.Run("explicit pair", func(t *testing.T) {
		slots, err := Generate(nil, 4, now, &Fallback{Start: start, End: start.Add(time.Hour), Capacity: 2, Title: "Intro"})
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.Equal(t, start, slots[0].Start)
		assert.Equal(t, 2, slots[0].Capacity)
		assert.Equal(t, "Intro", slots[0].Title)
	})

	t.Run("defaults capacity to one", func(t *testing.T) {
		slots, err := Generate(nil, 1, now, &Fallback{Start: start, End: start.Add(time.Hour)})
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.Equal(t, 1, slots[0].Capacity)
	})

	t.Run("inverted pair", func(t *testing.T) {
		slots, err := Generate(nil, 1, now, &Fallback{Start: start, End: start})
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("nothing supplied", func(t *testing.T) {
		slots, err := Generate(nil, 1, now, nil)
		require.NoError(t, err)
		assert.NotNil(t, slots)
		assert.Empty(t, slots)
	})

	t.Run("rules win over fallback", func(t *testing.T) {
		slots, err := Generate([]model.AvailabilityRule{mondayRule(1)}, 1, now, &Fallback{Start: start, End: start.Add(time.Hour)})
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.Equal(t, time.Monday, slots[0].Start.Weekday())
	})
}

func TestGenerate_KeepsWallClockAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 8 марта 2026 переход на летнее время
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, ny)
	rule := model.AvailabilityRule{DayOfWeek: int(time.Tuesday), StartTime: model.ClockTime{Hour: 10}, EndTime: model.ClockTime{Hour: 11}, Capacity: 1}

	slots, err := Generate([]model.AvailabilityRule{rule}, 2, now, nil)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	for _, s := range slots {
		assert.Equal(t, 10, s.Start.Hour())
		assert.Equal(t, time.Hour, s.End.Sub(s.Start))
	}
	assert.Equal(t, 7*24*time.Hour-time.Hour, slots[1].Start.Sub(slots[0].Start))
}

func TestToInstances(t *testing.T) {
	programID := int64(7)
	batch := uuid.New()
	start := time.Date(2026, time.October, 26, 9, 0, 0, 0, msk)
	slots := []Slot{{Start: start, End: start.Add(time.Hour), Capacity: 4, Title: "Go"}}

	instances := ToInstances(slots, Template{MentorID: 42, BatchID: batch, Price: 1200, Currency: "USD", ProgramID: &programID, RequiresApproval: true})
	require.Len(t, instances, 1)

	inst := instances[0]
	assert.Equal(t, int64(42), inst.MentorID)
	assert.Equal(t, batch, inst.BatchID)
	assert.Equal(t, 4, inst.Capacity)
	assert.Equal(t, int64(1200), inst.Price)
	assert.True(t, inst.InProgram())
	assert.True(t, inst.RequiresApproval)
	assert.Equal(t, "Go", inst.Title)
}
