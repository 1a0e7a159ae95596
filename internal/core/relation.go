package core

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Relation of a guardian to the student.
type Relation string

const (
	RelationPere   Relation = "pere"
	RelationMere   Relation = "mere"
	RelationTuteur Relation = "tuteur"
)

var relationSynonyms = []struct {
	relation Relation
	words    []string
}{
	{RelationPere, []string{"père", "pere", "papa", "father", "dad"}},
	{RelationMere, []string{"mère", "mere", "maman", "mother", "mom"}},
	{RelationTuteur, []string{"tuteur", "tutrice", "guardian"}},
}

// NormalizeRelation maps free text onto pere, mere or tuteur using
// case-insensitive substring matching. Unmatched input, including the
// empty string, yields tuteur with defaulted set to true.
func NormalizeRelation(s string) (rel Relation, defaulted bool) {
	folded := foldText(s)
	if folded == "" {
		return RelationTuteur, true
	}
	for _, syn := range relationSynonyms {
		for _, w := range syn.words {
			if strings.Contains(folded, w) {
				return syn.relation, false
			}
		}
	}
	return RelationTuteur, true
}

// foldText trims, NFC-normalizes and case-folds s for comparisons.
// A Caser holds state, so one is built per call.
func foldText(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}
