// Package metrics scores sequence labeling output at the entity-span
// level. Tags follow the IOB scheme ("B-PER", "I-PER", "O"); a predicted
// span counts as correct only when its type and both boundaries match a
// gold span exactly.
package metrics

import (
	"strings"

	"github.com/pkg/errors"
)

// Entity is a typed span over token positions. End is exclusive.
type Entity struct {
	Type  string
	Start int
	End   int
}

// Entities extracts the entity spans of a tag sequence. The reading is
// lenient: an I tag opens a new span when it follows O, the sentence
// start, or a span of a different type. Unknown prefixes act like O.
func Entities(tags []string) []Entity {
	var spans []Entity
	cur := Entity{Start: -1}
	flush := func(end int) {
		if cur.Start >= 0 {
			cur.End = end
			spans = append(spans, cur)
			cur = Entity{Start: -1}
		}
	}
	for i, tag := range tags {
		prefix, entityType := splitTag(tag)
		switch prefix {
		case "B":
			flush(i)
			cur = Entity{Type: entityType, Start: i}
		case "I":
			if cur.Start >= 0 && cur.Type == entityType {
				continue
			}
			flush(i)
			cur = Entity{Type: entityType, Start: i}
		default:
			flush(i)
		}
	}
	flush(len(tags))
	return spans
}

// splitTag separates the IOB prefix from the entity type.
func splitTag(tag string) (prefix, entityType string) {
	if tag == "" || tag == "O" {
		return "O", ""
	}
	before, after, found := strings.Cut(tag, "-")
	if !found {
		return before, ""
	}
	return before, after
}

// F1 computes the micro-averaged F1 over the entity spans pooled from all
// sentence pairs. Rows are paired by index.
func F1(trueTags, predTags [][]string) float64 {
	var truth, predicted, correct int
	n := len(trueTags)
	if len(predTags) < n {
		n = len(predTags)
	}
	for i := 0; i < n; i++ {
		trueSpans := Entities(trueTags[i])
		predSpans := Entities(predTags[i])
		truth += len(trueSpans)
		predicted += len(predSpans)
		correct += countMatches(trueSpans, predSpans)
	}
	precision := safeDiv(correct, predicted)
	recall := safeDiv(correct, truth)
	return harmonic(precision, recall)
}

// Evaluate computes per-type and micro-averaged scores. The tag rows must
// pair up one to one.
func Evaluate(trueTags, predTags [][]string) (*Report, error) {
	if len(trueTags) != len(predTags) {
		return nil, errors.Errorf("got %d gold rows but %d predicted rows", len(trueTags), len(predTags))
	}

	counts := make(map[string]*tally)
	get := func(entityType string) *tally {
		t, ok := counts[entityType]
		if !ok {
			t = &tally{}
			counts[entityType] = t
		}
		return t
	}

	for i := range trueTags {
		trueSpans := Entities(trueTags[i])
		predSpans := Entities(predTags[i])

		matched := make([]bool, len(predSpans))
		for _, ts := range trueSpans {
			t := get(ts.Type)
			t.truth++
			for j, ps := range predSpans {
				if !matched[j] && ps == ts {
					matched[j] = true
					t.correct++
					break
				}
			}
		}
		for _, ps := range predSpans {
			get(ps.Type).predicted++
		}
	}

	report := &Report{PerType: make(map[string]Scores, len(counts))}
	var micro tally
	for entityType, t := range counts {
		report.PerType[entityType] = t.scores()
		micro.truth += t.truth
		micro.predicted += t.predicted
		micro.correct += t.correct
	}
	report.Micro = micro.scores()
	return report, nil
}

type tally struct {
	truth     int
	predicted int
	correct   int
}

func (t *tally) scores() Scores {
	precision := safeDiv(t.correct, t.predicted)
	recall := safeDiv(t.correct, t.truth)
	return Scores{
		Precision: precision,
		Recall:    recall,
		F1:        harmonic(precision, recall),
		Support:   t.truth,
	}
}

func countMatches(trueSpans, predSpans []Entity) int {
	matched := make([]bool, len(predSpans))
	correct := 0
	for _, ts := range trueSpans {
		for j, ps := range predSpans {
			if !matched[j] && ps == ts {
				matched[j] = true
				correct++
				break
			}
		}
	}
	return correct
}

func safeDiv(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func harmonic(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}
