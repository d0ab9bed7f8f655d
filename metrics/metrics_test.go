package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntities(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want []Entity
	}{
		{
			name: "empty",
			tags: nil,
			want: nil,
		},
		{
			name: "all outside",
			tags: []string{"O", "O", "O"},
			want: nil,
		},
		{
			name: "single span",
			tags: []string{"B-PER", "I-PER", "O"},
			want: []Entity{{Type: "PER", Start: 0, End: 2}},
		},
		{
			name: "span runs to the end",
			tags: []string{"O", "B-LOC", "I-LOC"},
			want: []Entity{{Type: "LOC", Start: 1, End: 3}},
		},
		{
			name: "adjacent spans split by B",
			tags: []string{"B-PER", "B-PER"},
			want: []Entity{
				{Type: "PER", Start: 0, End: 1},
				{Type: "PER", Start: 1, End: 2},
			},
		},
		{
			name: "I after O opens a span",
			tags: []string{"O", "I-PER", "I-PER"},
			want: []Entity{{Type: "PER", Start: 1, End: 3}},
		},
		{
			name: "type change splits the span",
			tags: []string{"B-PER", "I-LOC"},
			want: []Entity{
				{Type: "PER", Start: 0, End: 1},
				{Type: "LOC", Start: 1, End: 2},
			},
		},
		{
			name: "unknown prefix acts like O",
			tags: []string{"B-PER", "X-PER", "I-PER"},
			want: []Entity{
				{Type: "PER", Start: 0, End: 1},
				{Type: "PER", Start: 2, End: 3},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Entities(tt.tags))
		})
	}
}

func TestF1(t *testing.T) {
	trueTags := [][]string{
		{"B-PER", "I-PER", "O", "B-LOC"},
		{"O", "B-LOC", "I-LOC", "O"},
	}

	t.Run("perfect", func(t *testing.T) {
		assert.InDelta(t, 1.0, F1(trueTags, trueTags), 1e-12)
	})

	t.Run("no predictions", func(t *testing.T) {
		pred := [][]string{
			{"O", "O", "O", "O"},
			{"O", "O", "O", "O"},
		}
		assert.Zero(t, F1(trueTags, pred))
	})

	t.Run("partial", func(t *testing.T) {
		// Two of three gold spans found, one spurious span predicted.
		pred := [][]string{
			{"B-PER", "I-PER", "O", "O"},
			{"B-ORG", "B-LOC", "I-LOC", "O"},
		}
		// precision 2/3, recall 2/3.
		assert.InDelta(t, 2.0/3.0, F1(trueTags, pred), 1e-12)
	})

	t.Run("boundary error is not a match", func(t *testing.T) {
		gold := [][]string{{"B-PER", "I-PER", "O"}}
		pred := [][]string{{"B-PER", "O", "O"}}
		assert.Zero(t, F1(gold, pred))
	})
}

func TestEvaluate(t *testing.T) {
	trueTags := [][]string{
		{"B-PER", "I-PER", "O", "B-LOC"},
		{"O", "B-LOC", "O"},
	}
	predTags := [][]string{
		{"B-PER", "I-PER", "O", "O"},
		{"O", "B-LOC", "B-ORG"},
	}

	report, err := Evaluate(trueTags, predTags)
	require.NoError(t, err)

	per := report.PerType["PER"]
	assert.InDelta(t, 1.0, per.Precision, 1e-12)
	assert.InDelta(t, 1.0, per.Recall, 1e-12)
	assert.Equal(t, 1, per.Support)

	loc := report.PerType["LOC"]
	assert.InDelta(t, 1.0, loc.Precision, 1e-12)
	assert.InDelta(t, 0.5, loc.Recall, 1e-12)
	assert.Equal(t, 2, loc.Support)

	org := report.PerType["ORG"]
	assert.Zero(t, org.Precision)
	assert.Equal(t, 0, org.Support)

	// Pooled: 3 gold spans, 3 predicted, 2 correct.
	assert.InDelta(t, 2.0/3.0, report.Micro.Precision, 1e-12)
	assert.InDelta(t, 2.0/3.0, report.Micro.Recall, 1e-12)
	assert.Equal(t, 3, report.Micro.Support)
}

func TestEvaluateRowMismatch(t *testing.T) {
	_, err := Evaluate([][]string{{"O"}}, nil)
	assert.Error(t, err)
}

func TestReportString(t *testing.T) {
	report, err := Evaluate(
		[][]string{{"B-PER", "O", "B-LOC"}},
		[][]string{{"B-PER", "O", "O"}},
	)
	require.NoError(t, err)

	text := report.String()
	assert.Contains(t, text, "precision")
	assert.Contains(t, text, "micro avg")

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	last := lines[len(lines)-1]
	assert.Contains(t, last, "micro avg")
	assert.Contains(t, last, "0.5000")

	// LOC sorts before PER in the per-type rows.
	assert.Less(t, strings.Index(text, "LOC"), strings.Index(text, "PER"))
}
