package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

func TestIntervalSchedules(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

	t.Run("every interval", func(t *testing.T) {
		t.Parallel()

		s := queue.EveryInterval(90 * time.Second)
		assert.Equal(t, from.Add(90*time.Second), s.Next(from))
		assert.Equal(t, "every 1m30s", s.String())
	})

	t.Run("every minutes", func(t *testing.T) {
		t.Parallel()

		s := queue.EveryMinutes(15)
		assert.Equal(t, from.Add(15*time.Minute), s.Next(from))
	})

	t.Run("every hours", func(t *testing.T) {
		t.Parallel()

		s := queue.EveryHours(6)
		assert.Equal(t, from.Add(6*time.Hour), s.Next(from))
	})

	t.Run("hourly", func(t *testing.T) {
		t.Parallel()

		s := queue.Hourly()
		assert.Equal(t, from.Add(time.Hour), s.Next(from))
	})
}

func TestDailySchedule(t *testing.T) {
	t.Parallel()

	t.Run("later today", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
		s := queue.DailyAt(14, 30)

		next := s.Next(from)
		assert.Equal(t, time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC), next)
	})

	t.Run("already passed, rolls to tomorrow", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
		s := queue.DailyAt(14, 30)

		next := s.Next(from)
		assert.Equal(t, time.Date(2025, 3, 11, 14, 30, 0, 0, time.UTC), next)
	})

	t.Run("midnight default", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 3, 10, 0, 0, 1, 0, time.UTC)
		s := queue.Daily()

		next := s.Next(from)
		assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), next)
	})
}

func TestWeeklySchedule(t *testing.T) {
	t.Parallel()

	// March 10th 2025 is a Monday
	from := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("later this week", func(t *testing.T) {
		t.Parallel()

		s := queue.WeeklyOn(time.Friday, 9, 0)
		next := s.Next(from)
		assert.Equal(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), next)
		assert.Equal(t, time.Friday, next.Weekday())
	})

	t.Run("same day earlier time rolls a week", func(t *testing.T) {
		t.Parallel()

		s := queue.WeeklyOn(time.Monday, 9, 0)
		next := s.Next(from)
		assert.Equal(t, time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("same day later time stays this week", func(t *testing.T) {
		t.Parallel()

		s := queue.WeeklyOn(time.Monday, 18, 0)
		next := s.Next(from)
		assert.Equal(t, time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC), next)
	})
}

func TestHourlyAtSchedule(t *testing.T) {
	t.Parallel()

	t.Run("later this hour", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 3, 10, 14, 10, 0, 0, time.UTC)
		s := queue.HourlyAt(30)
		assert.Equal(t, time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC), s.Next(from))
	})

	t.Run("minute passed rolls to next hour", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 3, 10, 14, 45, 0, 0, time.UTC)
		s := queue.HourlyAt(30)
		assert.Equal(t, time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC), s.Next(from))
	})
}

func TestMonthlySchedule(t *testing.T) {
	t.Parallel()

	t.Run("later this month", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		s := queue.MonthlyOn(15, 3, 0)
		assert.Equal(t, time.Date(2025, 3, 15, 3, 0, 0, 0, time.UTC), s.Next(from))
	})

	t.Run("already passed rolls to next month", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
		s := queue.MonthlyOn(15, 3, 0)
		assert.Equal(t, time.Date(2025, 4, 15, 3, 0, 0, 0, time.UTC), s.Next(from))
	})

	t.Run("day 31 clamps in short months", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
		s := queue.MonthlyOn(31, 0, 0)
		assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), s.Next(from))
	})

	t.Run("december rolls into january", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)
		s := queue.MonthlyOn(15, 0, 0)
		assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), s.Next(from))
	})
}
