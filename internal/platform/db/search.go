package db

import (
	"strings"

	"golang.org/x/text/cases"
)

// LikeEscape is the ESCAPE character used by ContainsPattern. It is not a
// backslash because mysql and sqlite disagree on backslashes in literals.
const LikeEscape = "!"

// FoldKey is the case-folded form stored in *_key columns. Search terms are
// folded the same way, so matching does not depend on the backend's LOWER.
func FoldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

var likeEscaper = strings.NewReplacer(LikeEscape, LikeEscape+LikeEscape, "%", LikeEscape+"%", "_", LikeEscape+"_")

// ContainsPattern folds term and turns it into a substring LIKE pattern with
// its wildcards escaped. Use it with `LIKE ? ESCAPE '!'`.
func ContainsPattern(term string) string {
	return "%" + likeEscaper.Replace(FoldKey(term)) + "%"
}
