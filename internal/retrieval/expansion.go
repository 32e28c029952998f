package retrieval

import "strings"

// synonyms maps household vocabulary to alternates users actually say.
// Expansion rewrites the query once per matched term; it never chains
// substitutions, so the variant count stays bounded by the table.
var synonyms = map[string][]string{
	"buy":       {"purchase", "get"},
	"groceries": {"shopping", "food"},
	"remind":    {"reminder", "remember"},
	"meeting":   {"appointment", "call"},
	"doctor":    {"gp", "physician"},
	"kids":      {"children"},
	"mum":       {"mother", "mom"},
	"dad":       {"father"},
	"house":     {"home"},
	"car":       {"vehicle"},
	"favorite":  {"favourite", "preferred"},
	"favourite": {"favorite", "preferred"},
	"color":     {"colour"},
	"colour":    {"color"},
	"birthday":  {"bday"},
}

// expandQuery returns the original query first, followed by single-term
// synonym rewrites. The original always leads so its candidates win rank
// ties downstream.
func expandQuery(query string) []string {
	out := []string{query}
	seen := map[string]bool{strings.ToLower(query): true}

	words := strings.Fields(strings.ToLower(query))
	for i, w := range words {
		trimmed := strings.Trim(w, ".,!?;:")
		alts, ok := synonyms[trimmed]
		if !ok {
			continue
		}
		for _, alt := range alts {
			variant := make([]string, len(words))
			copy(variant, words)
			variant[i] = alt
			v := strings.Join(variant, " ")
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}

	// Three variants is plenty; more just burns embedding calls.
	if len(out) > 4 {
		out = out[:4]
	}
	return out
}
