package scheduling

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	DefaultMaxAlternatives = 5

	suggestionHorizonDays = 5
	suggestionStep        = 30 * time.Minute
	suggestionDayStart    = 8
	suggestionDayEnd      = 18
	sameDayBonus          = 10.0
	perfectScore          = 100.0
)

// ReasonPreferredAvailable marks the single suggestion returned when the
// preferred slot is free.
const ReasonPreferredAvailable = "Preferred time available"

// Alternative is a suggested slot. Scores are not clamped and may go
// negative far from the preferred time.
type Alternative struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Score     float64   `json:"score"`
	Reason    string    `json:"reason"`
}

// SuggestAlternativeTimes returns the preferred slot when it is free.
// Otherwise it walks 30 minute steps from 08:00 on the preferred day over
// five days, skipping nights, and returns up to maxAlternatives free slots
// ordered by score. Equal scores keep scan order.
func (s *Service) SuggestAlternativeTimes(ctx context.Context, resourceID uint, preferredStart time.Time, duration time.Duration, maxAlternatives int) ([]Alternative, error) {
	resource, err := s.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if maxAlternatives <= 0 {
		maxAlternatives = DefaultMaxAlternatives
	}
	if duration <= 0 {
		duration = resource.DefaultBookingDuration
	}

	preferredEnd := preferredStart.Add(duration)
	free, err := slotAvailable(ctx, s.repo, resource, preferredStart, preferredEnd, nil)
	if err != nil {
		return nil, err
	}
	if free {
		return []Alternative{{
			StartTime: preferredStart,
			EndTime:   preferredEnd,
			Score:     perfectScore,
			Reason:    ReasonPreferredAvailable,
		}}, nil
	}

	y, m, d := preferredStart.Date()
	loc := preferredStart.Location()
	current := time.Date(y, m, d, suggestionDayStart, 0, 0, 0, loc)
	searchEnd := current.AddDate(0, 0, suggestionHorizonDays)

	alternatives := []Alternative{}
	for current.Before(searchEnd) && len(alternatives) < maxAlternatives {
		end := current.Add(duration)
		free, err := slotAvailable(ctx, s.repo, resource, current, end, nil)
		if err != nil {
			return nil, err
		}
		if free {
			hours := math.Abs(current.Sub(preferredStart).Hours())
			score := perfectScore - hours
			if civilDate(current) == civilDate(preferredStart) {
				score += sameDayBonus
			}
			alternatives = append(alternatives, Alternative{
				StartTime: current,
				EndTime:   end,
				Score:     round(score, 1),
				Reason:    fmt.Sprintf("Available %.1f hours from preferred time", hours),
			})
		}

		current = current.Add(suggestionStep)
		if current.Hour() < suggestionDayStart || current.Hour() >= suggestionDayEnd {
			cy, cm, cd := current.Date()
			current = time.Date(cy, cm, cd+1, suggestionDayStart, 0, 0, 0, loc)
		}
	}

	sort.SliceStable(alternatives, func(i, j int) bool {
		return alternatives[i].Score > alternatives[j].Score
	})
	return alternatives, nil
}
