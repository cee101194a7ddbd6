// Package scoring recomputes rubric subtopic percentages after a finished chat.
package scoring

import "github.com/pavelanni/tutor/internal/model"

const (
	// errorWeight scales the inverse of the backend's error percentage.
	errorWeight = 0.80
	// correctBonus is added when the chosen option is the correct one.
	correctBonus = 20.0
)

// SubtractPercents returns the rubric with each percent replaced by
// (100 - errorPercent) * 0.80 + bonus, where bonus is 20 when userIndex equals
// correctIndex. Subtopics the backend did not report count as 0% error.
func SubtractPercents(rubric []model.Subtopic, correctIndex, userIndex int, output []model.OutputSubtopic) []model.Subtopic {
	errs := make(map[string]float64, len(output))
	for _, o := range output {
		errs[o.Name] = o.Percent
	}

	bonus := 0.0
	if userIndex == correctIndex {
		bonus = correctBonus
	}

	out := make([]model.Subtopic, 0, len(rubric))
	for _, s := range rubric {
		out = append(out, model.Subtopic{
			Name:    s.Name,
			Percent: (100-errs[s.Name])*errorWeight + bonus,
		})
	}
	return out
}

// Average returns the mean percent of subs, or 0 for an empty rubric.
func Average(subs []model.Subtopic) float64 {
	if len(subs) == 0 {
		return 0
	}
	var sum float64
	for _, s := range subs {
		sum += s.Percent
	}
	return sum / float64(len(subs))
}
