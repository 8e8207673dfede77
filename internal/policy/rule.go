package policy

// Rule is one parsed sudoers userspec line (spec.md §3 "Policy rule").
// A query OR-accumulates across every matching rule: any rule granting
// the command authorizes it, and any matching rule granting NOPASSWD
// makes the whole decision NOPASSWD, regardless of order.
type Rule struct {
	// Principals are usernames, or group names prefixed with "%".
	Principals []string
	// Hosts this rule applies to ("ALL" matches any host).
	Hosts []string
	// Commands are absolute paths, "ALL", or a "!"-prefixed negation.
	Commands []string
	// RunAs is the set of users this rule permits running as. Empty means
	// the default run-as target (root) only; "ALL" permits any target.
	RunAs []string
	// NoPasswd, when true, means matching commands need no re-authentication.
	NoPasswd bool
	// Provenance is the file this rule was parsed from.
	Provenance string
}

// principalMatches reports whether user (optionally with its group
// memberships) satisfies one of the rule's principal entries.
func (r Rule) principalMatches(user string, groups map[string]struct{}) bool {
	for _, p := range r.Principals {
		if p == "ALL" {
			return true
		}
		if len(p) > 0 && p[0] == '%' {
			if _, ok := groups[p[1:]]; ok {
				return true
			}
			continue
		}
		if p == user {
			return true
		}
	}
	return false
}

func (r Rule) hostMatches(host string) bool {
	for _, h := range r.Hosts {
		if h == "ALL" || h == host {
			return true
		}
	}
	return false
}

// runAsMatches reports whether this rule permits running as target.
func (r Rule) runAsMatches(target string) bool {
	if len(r.RunAs) == 0 {
		return target == "root" || target == ""
	}
	for _, ra := range r.RunAs {
		if ra == "ALL" || ra == target {
			return true
		}
	}
	return false
}

// commandMatches compares the canonical command c against this rule's
// command patterns using glob matching (spec.md §4.B: "ALL" matches
// unconditionally; a negated pattern excludes; plain patterns are exact
// path matches, generalized here to shell-style globs so administrators
// can write patterns like "/usr/bin/systemctl *").
func (r Rule) commandMatches(c string) (matched bool, negated bool) {
	for _, pat := range r.Commands {
		neg := false
		p := pat
		if len(p) > 0 && p[0] == '!' {
			neg = true
			p = p[1:]
		}
		if p == "ALL" {
			if neg {
				return false, true
			}
			matched = true
			continue
		}
		if globMatch(p, c) {
			if neg {
				return false, true
			}
			matched = true
		}
	}
	return matched, false
}
