package policy

import (
	"fmt"
	"strings"
)

// parseRuleLine parses one "principals hosts = [(runas)] [NOPASSWD:] commands"
// line per spec.md §4.B.
func parseRuleLine(line string) (Rule, error) {
	eq := strings.Index(line, "=")
	if eq < 0 {
		return Rule{}, fmt.Errorf("rule line missing '='")
	}
	left := strings.TrimSpace(line[:eq])
	right := strings.TrimSpace(line[eq+1:])
	if left == "" || right == "" {
		return Rule{}, fmt.Errorf("rule line incomplete")
	}

	leftFields := strings.Fields(left)
	if len(leftFields) < 2 {
		return Rule{}, fmt.Errorf("expected '<principals> <hosts>' before '='")
	}
	hostsField := leftFields[len(leftFields)-1]
	principalsField := strings.Join(leftFields[:len(leftFields)-1], " ")

	rule := Rule{
		Principals: splitCommaList(principalsField),
		Hosts:      splitCommaList(hostsField),
	}

	if len(rule.Principals) == 0 || len(rule.Hosts) == 0 {
		return Rule{}, fmt.Errorf("rule line has no principals or hosts")
	}

	rest := right
	if strings.HasPrefix(rest, "(") {
		close := strings.IndexByte(rest, ')')
		if close < 0 {
			return Rule{}, fmt.Errorf("unterminated runas clause")
		}
		rule.RunAs = splitCommaList(rest[1:close])
		rest = strings.TrimSpace(rest[close+1:])
	}

	if strings.HasPrefix(rest, "NOPASSWD:") {
		rule.NoPasswd = true
		rest = strings.TrimSpace(strings.TrimPrefix(rest, "NOPASSWD:"))
	}

	rule.Commands = splitCommaList(rest)
	if len(rule.Commands) == 0 {
		return Rule{}, fmt.Errorf("rule line has no commands")
	}

	return rule, nil
}

func splitCommaList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Render renders a Rule back into sudoers syntax. Used for the "rules"
// built-in and for the round-trip invariant in §8: parsing Render(r)
// yields an equivalent rule.
func (r Rule) Render() string {
	var b strings.Builder
	b.WriteString(strings.Join(r.Principals, ","))
	b.WriteByte(' ')
	b.WriteString(strings.Join(r.Hosts, ","))
	b.WriteString(" = ")
	if len(r.RunAs) > 0 {
		b.WriteByte('(')
		b.WriteString(strings.Join(r.RunAs, ","))
		b.WriteString(") ")
	}
	if r.NoPasswd {
		b.WriteString("NOPASSWD: ")
	}
	b.WriteString(strings.Join(r.Commands, ","))
	return b.String()
}
