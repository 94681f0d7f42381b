package queue

import (
	"fmt"
	"time"
)

// Schedule determines when a periodic job should run
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

// intervalSchedule runs at fixed intervals
type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %v", s.every)
}

// dailySchedule runs once per day at specified time
type dailySchedule struct {
	hour   int
	minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	next := time.Date(
		from.Year(), from.Month(), from.Day(),
		s.hour, s.minute, 0, 0, from.Location(),
	)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily at %02d:%02d", s.hour, s.minute)
}

// weeklySchedule runs once per week on specified day and time
type weeklySchedule struct {
	weekday time.Weekday
	hour    int
	minute  int
}

func (s weeklySchedule) Next(from time.Time) time.Time {
	// Days until target weekday, with modulo handling week wraparound
	daysUntil := (int(s.weekday) - int(from.Weekday()) + 7) % 7

	next := from.AddDate(0, 0, daysUntil)
	next = time.Date(
		next.Year(), next.Month(), next.Day(),
		s.hour, s.minute, 0, 0, next.Location(),
	)

	if !next.After(from) {
		next = next.AddDate(0, 0, 7) // Next week
	}
	return next
}

func (s weeklySchedule) String() string {
	return fmt.Sprintf("weekly on %s at %02d:%02d", s.weekday, s.hour, s.minute)
}

// monthlySchedule runs once per month on specified day and time
type monthlySchedule struct {
	day    int
	hour   int
	minute int
}

func (s monthlySchedule) Next(from time.Time) time.Time {
	next := s.inMonth(from.Year(), from.Month(), from.Location())
	if !next.After(from) {
		next = s.inMonth(from.Year(), from.Month()+1, from.Location())
	}
	return next
}

// inMonth clamps the day to the month's length so day 31 still fires in
// shorter months.
func (s monthlySchedule) inMonth(year int, month time.Month, loc *time.Location) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	day := s.day
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, s.hour, s.minute, 0, 0, loc)
}

func (s monthlySchedule) String() string {
	return fmt.Sprintf("monthly on day %d at %02d:%02d", s.day, s.hour, s.minute)
}

// hourlySchedule runs every hour at specified minute
type hourlySchedule struct {
	minute int
}

func (s hourlySchedule) Next(from time.Time) time.Time {
	next := time.Date(
		from.Year(), from.Month(), from.Day(),
		from.Hour(), s.minute, 0, 0, from.Location(),
	)
	if !next.After(from) {
		next = next.Add(time.Hour)
	}
	return next
}

func (s hourlySchedule) String() string {
	return fmt.Sprintf("hourly at :%02d", s.minute)
}

// Factory functions for creating schedules

// EveryInterval creates a schedule that runs at fixed intervals
func EveryInterval(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// EveryMinutes creates a schedule that runs every n minutes
func EveryMinutes(n int) Schedule {
	return intervalSchedule{every: time.Duration(n) * time.Minute}
}

// EveryHours creates a schedule that runs every n hours
func EveryHours(n int) Schedule {
	return intervalSchedule{every: time.Duration(n) * time.Hour}
}

// DailyAt creates a schedule that runs daily at specified time
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour, minute: minute}
}

// WeeklyOn creates a schedule that runs weekly on specified day and time
func WeeklyOn(weekday time.Weekday, hour, minute int) Schedule {
	return weeklySchedule{weekday: weekday, hour: hour, minute: minute}
}

// MonthlyOn creates a schedule that runs monthly on specified day and time.
// Days beyond the end of a month fire on that month's last day.
func MonthlyOn(day, hour, minute int) Schedule {
	return monthlySchedule{day: day, hour: hour, minute: minute}
}

// HourlyAt creates a schedule that runs every hour at specified minute
func HourlyAt(minute int) Schedule {
	return hourlySchedule{minute: minute}
}

// Daily creates a schedule that runs daily at midnight
func Daily() Schedule {
	return dailySchedule{hour: 0, minute: 0}
}

// Hourly creates a schedule that runs every hour
func Hourly() Schedule {
	return intervalSchedule{every: time.Hour}
}
