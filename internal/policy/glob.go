package policy

import wildcard "github.com/IGLOU-EU/go-wildcard/v2"

// globMatch matches a sudoers command pattern against a canonical command
// string using shell-style wildcards, so patterns like
// "/usr/bin/systemctl *" (§4.B generalizes plain literal-path matching to
// globs; exact literal paths such as "/usr/bin/ls" still match exactly
// since they contain no wildcard characters).
func globMatch(pattern, candidate string) bool {
	return wildcard.Match(pattern, candidate)
}
