package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// Scores holds precision, recall and F1 for one slice of the evaluation.
// Support is the number of gold entities in that slice.
type Scores struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is a per-entity-type breakdown of span scores plus the
// micro average across all types.
type Report struct {
	PerType map[string]Scores
	Micro   Scores
}

// Types returns the entity types of the report in sorted order.
func (r *Report) Types() []string {
	types := make([]string, 0, len(r.PerType))
	for entityType := range r.PerType {
		types = append(types, entityType)
	}
	sort.Strings(types)
	return types
}

// String renders the report as an aligned text table, one row per entity
// type plus a micro average row.
func (r *Report) String() string {
	nameWidth := len("micro avg")
	for entityType := range r.PerType {
		if len(entityType) > nameWidth {
			nameWidth = len(entityType)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s  %9s  %9s  %9s\n", nameWidth, "", "precision", "recall", "f1-score", "support")
	b.WriteString("\n")
	for _, entityType := range r.Types() {
		s := r.PerType[entityType]
		fmt.Fprintf(&b, "%*s  %9.4f  %9.4f  %9.4f  %9d\n", nameWidth, entityType, s.Precision, s.Recall, s.F1, s.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9.4f  %9.4f  %9.4f  %9d\n", nameWidth, "micro avg",
		r.Micro.Precision, r.Micro.Recall, r.Micro.F1, r.Micro.Support)
	return b.String()
}
