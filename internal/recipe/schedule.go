package recipe

import (
	"fmt"
	"sort"

	"dinnerplan/internal/units"
)

// ScheduledStep is a timeline step with its wall-clock start time.
type ScheduledStep struct {
	TimelineStep
	ClockTime string `json:"clockTime"`
}

// Schedule orders the timeline with the earliest step first (largest
// minutesBefore) and attaches clock times computed from DinnerTime. Steps that
// start before midnight of a late-night dinner wrap to the previous evening.
func Schedule(d *RecipeDetail) ([]ScheduledStep, error) {
	steps := make([]TimelineStep, len(d.Timeline))
	copy(steps, d.Timeline)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].MinutesBefore > steps[j].MinutesBefore
	})

	out := make([]ScheduledStep, 0, len(steps))
	for _, s := range steps {
		clock, err := units.ActualTime(d.DinnerTime, s.MinutesBefore)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDinnerTime, err)
		}
		out = append(out, ScheduledStep{TimelineStep: s, ClockTime: clock})
	}
	return out, nil
}

// ConvertIngredients converts every ingredient of d to the target system.
func ConvertIngredients(d *RecipeDetail, target units.System) []units.Conversion {
	return units.ConvertAll(d.Ingredients, target)
}
