package scheduling

import (
	"strings"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
)

// DefaultDailyCapacityHours applies when no capacity_override rule matches.
const DefaultDailyCapacityHours = 8.0

// Weekday returns the weekday of t with Monday=0 ... Sunday=6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// civilDate folds the calendar date of t into a comparable integer so
// dates loaded in different locations compare by their face value.
func civilDate(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

func secondsOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// parseClock parses "HH:MM" or "HH:MM:SS" into seconds past midnight.
func parseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return secondsOfDay(t), true
		}
	}
	return 0, false
}

// withinWorkingWindow checks the resource's default availability window.
// Unconfigured rules put no restriction on this axis.
func withinWorkingWindow(rules models.AvailabilityRules, start, end time.Time) bool {
	if !rules.IsConfigured() {
		return true
	}
	startHour, endHour, workingDays := rules.Window()
	if !containsInt(workingDays, Weekday(start)) {
		return false
	}
	if civilDate(start) != civilDate(end) {
		return false
	}
	return secondsOfDay(start) >= startHour*3600 && secondsOfDay(end) <= endHour*3600
}

// ruleMatchesDate checks the rule's date range and weekday list.
func ruleMatchesDate(rule *models.ResourceScheduleRule, day time.Time) bool {
	d := civilDate(day)
	if rule.StartDate != nil && d < civilDate(*rule.StartDate) {
		return false
	}
	if rule.EndDate != nil && d > civilDate(*rule.EndDate) {
		return false
	}
	if len(rule.DaysOfWeek) > 0 && !containsInt(rule.DaysOfWeek, Weekday(day)) {
		return false
	}
	return true
}

// ruleMatchesWindow reports whether [start, end) falls under the rule. A
// rule with a time-of-day range matches on overlap; a rule without one
// matches the whole day. A half-specified range never matches.
func ruleMatchesWindow(rule *models.ResourceScheduleRule, start, end time.Time) bool {
	if !ruleMatchesDate(rule, start) {
		return false
	}
	if rule.StartTime != nil && rule.EndTime != nil {
		ruleStart, ok1 := parseClock(*rule.StartTime)
		ruleEnd, ok2 := parseClock(*rule.EndTime)
		if !ok1 || !ok2 {
			return false
		}
		return secondsOfDay(start) < ruleEnd && secondsOfDay(end) > ruleStart
	}
	return rule.StartTime == nil && rule.EndTime == nil
}

func anyRuleMatches(rules []models.ResourceScheduleRule, start, end time.Time) bool {
	for i := range rules {
		if ruleMatchesWindow(&rules[i], start, end) {
			return true
		}
	}
	return false
}

// dateAvailable applies availability-type rules: none means every day is
// available, otherwise at least one must match.
func dateAvailable(rules []models.ResourceScheduleRule, day time.Time) bool {
	if len(rules) == 0 {
		return true
	}
	for i := range rules {
		if ruleMatchesDate(&rules[i], day) {
			return true
		}
	}
	return false
}

// dailyCapacity returns capacity_hours of the first matching override.
func dailyCapacity(rules []models.ResourceScheduleRule, day time.Time) float64 {
	for i := range rules {
		if !ruleMatchesDate(&rules[i], day) {
			continue
		}
		if hours, ok := numeric(rules[i].RuleConfig["capacity_hours"]); ok {
			return hours
		}
		return DefaultDailyCapacityHours
	}
	return DefaultDailyCapacityHours
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
