package units

import (
	"fmt"
	"strings"
	"time"
)

const (
	targetLayout  = "15:04"
	displayLayout = "3:04 PM"
)

// ParseClock validates a 24-hour "HH:MM" string.
func ParseClock(target string) (time.Time, error) {
	t, err := time.Parse(targetLayout, strings.TrimSpace(target))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock time %q: expected HH:MM", target)
	}
	return t, nil
}

// ActualTime returns the wall-clock time that is minutesBefore minutes ahead of target,
// formatted as "h:mm AM/PM". No date is tracked: a schedule that starts before midnight
// wraps around the 24-hour clock, so 00:10 minus 30 minutes is 11:40 PM.
func ActualTime(target string, minutesBefore int) (string, error) {
	t, err := ParseClock(target)
	if err != nil {
		return "", err
	}
	return t.Add(-time.Duration(minutesBefore) * time.Minute).Format(displayLayout), nil
}

// DisplayTime formats a 24-hour "HH:MM" string as "h:mm AM/PM".
func DisplayTime(target string) (string, error) {
	return ActualTime(target, 0)
}
