package policy

// Decision is the outcome of an authorization query: whether a command is
// permitted, and if so whether it requires re-authentication.
type Decision struct {
	Allowed  bool
	NoPasswd bool
	// MatchedRule is the rule that produced this decision, for audit
	// logging ("matched sudoers line N" style detail).
	MatchedRule *Rule
}

// matchingRules returns every rule (local and directory-service, in order)
// whose principal and host clauses apply to user on the store's host.
func (s *Store) matchingRules(user string) []Rule {
	groups := groupsOf(user)
	all := s.allRulesFor(user)
	out := make([]Rule, 0, len(all))
	for _, r := range all {
		if r.principalMatches(user, groups) && r.hostMatches(s.host) {
			out = append(out, r)
		}
	}
	return out
}

// HasAnyPrivilege reports whether user has any sudoers entry at all,
// independent of which command or run-as target is asked for. Used to
// distinguish "not a sudoer" (exit immediately) from "sudoer but this
// command is denied" (per §4.B / §7 error handling).
func (s *Store) HasAnyPrivilege(user string) bool {
	return len(s.matchingRules(user)) > 0
}

// Authorize decides whether user may run command as target, per
// spec.md §4.B precedence: "authorized becomes true on first successful
// match" and "nopasswd becomes true if any authorized match has the flag
// set" — both booleans are OR-accumulated across every matching rule
// (local then directory), never reset by a later rule. A rule whose
// command pattern is negated simply contributes nothing to this
// decision; it does not retract a grant made by a different rule.
func (s *Store) Authorize(user, command, target string) Decision {
	var decision Decision
	for _, r := range s.matchingRules(user) {
		if !r.runAsMatches(target) {
			continue
		}
		matched, negated := r.commandMatches(command)
		if negated || !matched {
			continue
		}
		decision.Allowed = true
		if r.NoPasswd {
			decision.NoPasswd = true
		}
		if decision.MatchedRule == nil {
			rule := r
			decision.MatchedRule = &rule
		}
	}
	return decision
}

// IsAuthorized is a convenience wrapper over Authorize for callers that
// only need the allow/deny bit.
func (s *Store) IsAuthorized(user, command, target string) bool {
	return s.Authorize(user, command, target).Allowed
}

// NoPasswd reports whether user running command as target is authorized
// without requiring re-authentication.
func (s *Store) NoPasswd(user, command, target string) bool {
	d := s.Authorize(user, command, target)
	return d.Allowed && d.NoPasswd
}

// MayRunAs reports whether any of user's matching rules permit running as
// target at all, regardless of command (used for the "-u" flag's
// up-front eligibility check before parsing a command line).
func (s *Store) MayRunAs(user, target string) bool {
	for _, r := range s.matchingRules(user) {
		if r.runAsMatches(target) {
			return true
		}
	}
	return false
}

// ListRules returns the rules applying to user, for the "rules" built-in
// (§4.K lists a user's own effective privileges).
func (s *Store) ListRules(user string) []Rule {
	return s.matchingRules(user)
}
