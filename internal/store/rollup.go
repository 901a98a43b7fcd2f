package store

import (
	"sort"
	"time"

	"telefwd/pkg/domain"
)

type logEntry struct {
	Status    domain.ForwardStatus
	CreatedAt time.Time
}

// rollupDaily buckets log entries by UTC calendar day, ascending.
func rollupDaily(entries []logEntry) []domain.DailyStat {
	byDay := make(map[string]*domain.DailyStat)
	for _, e := range entries {
		day := e.CreatedAt.UTC().Format("2006-01-02")
		stat, ok := byDay[day]
		if !ok {
			stat = &domain.DailyStat{Date: day}
			byDay[day] = stat
		}
		stat.Total++
		switch e.Status {
		case domain.ForwardSuccess:
			stat.Successful++
		case domain.ForwardFailed:
			stat.Failed++
		case domain.ForwardFiltered:
			stat.Filtered++
		}
	}
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)
	out := make([]domain.DailyStat, 0, len(days))
	for _, day := range days {
		out = append(out, *byDay[day])
	}
	return out
}
