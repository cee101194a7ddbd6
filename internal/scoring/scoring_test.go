package scoring

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/pavelanni/tutor/internal/model"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSubtractPercents(t *testing.T) {
	var output []model.OutputSubtopic
	if err := json.Unmarshal([]byte(`[["X","30"]]`), &output); err != nil {
		t.Fatalf("unmarshal output subtopics: %v", err)
	}
	rubric := []model.Subtopic{{Name: "X", Percent: 0}}

	tests := []struct {
		name      string
		userIndex int
		want      float64
	}{
		{"correct option", 1, 76},
		{"wrong option", 0, 56},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SubtractPercents(rubric, 1, tt.userIndex, output)
			if len(got) != 1 {
				t.Fatalf("expected 1 subtopic, got %d", len(got))
			}
			if got[0].Name != "X" || !approx(got[0].Percent, tt.want) {
				t.Errorf("got %+v, want X=%v", got[0], tt.want)
			}
		})
	}
}

func TestSubtractPercentsMissingSubtopic(t *testing.T) {
	rubric := []model.Subtopic{{Name: "grammar"}, {Name: "vocabulary"}}
	output := []model.OutputSubtopic{{Name: "grammar", Percent: 50}}

	got := SubtractPercents(rubric, 2, 3, output)
	if !approx(got[0].Percent, 40) {
		t.Errorf("grammar = %v, want 40", got[0].Percent)
	}
	if !approx(got[1].Percent, 80) {
		t.Errorf("vocabulary = %v, want 80", got[1].Percent)
	}
	if rubric[0].Percent != 0 {
		t.Error("input rubric must not be modified")
	}
}

func TestOutputSubtopicNumericPercent(t *testing.T) {
	var output []model.OutputSubtopic
	if err := json.Unmarshal([]byte(`[["A", 12.5], ["B", ""]]`), &output); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if output[0].Percent != 12.5 || output[1].Percent != 0 {
		t.Errorf("unexpected output %+v", output)
	}
}

func TestAverage(t *testing.T) {
	if Average(nil) != 0 {
		t.Error("Average(nil) should be 0")
	}
	got := Average([]model.Subtopic{{Percent: 40}, {Percent: 80}})
	if !approx(got, 60) {
		t.Errorf("Average = %v, want 60", got)
	}
}
