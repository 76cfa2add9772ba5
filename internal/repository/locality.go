package repository

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// localityKey folds a locality name for matching: accents stripped,
// lowercased, whitespace collapsed. "ÁLVARO  Obregón" and "alvaro obregon"
// share a key.
func localityKey(s string) string {
	// Chained transformers keep state, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern with ESCAPE '\'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// findHazardsQuery returns the lookup for either dialect; placeholder is "?"
// for sqlite and "$1" for postgres. The argument is hazardLookupArg's result.
func findHazardsQuery(exact bool, placeholder string) string {
	where := `locality_key = ` + placeholder
	if !exact {
		where = `locality_key LIKE '%' || ` + placeholder + ` || '%' ESCAPE '\'`
	}
	return `SELECT ` + hazardColumns + ` FROM hazard_zones WHERE ` + where + ` ORDER BY id`
}

func hazardLookupArg(locality string, exact bool) string {
	key := localityKey(locality)
	if exact {
		return key
	}
	return escapeLike(key)
}
