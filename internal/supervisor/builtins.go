package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// builtinNames lists the commands the supervisor short-circuits at
// parsing time rather than sending through the classifier/executor, per
// §4.K and §4.E's built-in class.
var builtinNames = map[string]bool{
	"cd": true, "pwd": true, "pushd": true, "popd": true, "dirs": true,
	"alias": true, "unalias": true, "export": true, "unset": true,
	"env": true, "printenv": true, "which": true, "type": true,
	"help": true, "history": true, "commands": true, "rules": true,
}

// runBuiltin recognizes and executes one of the built-ins listed above.
// It returns handled=false for anything else, leaving the caller to run
// the normal classify/validate/execute path.
func (s *Supervisor) runBuiltin(line string) (handled bool, output string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, ""
	}
	name := fields[0]
	if alias, ok := s.aliases[name]; ok && name != "alias" && name != "unalias" {
		fields = append(strings.Fields(alias), fields[1:]...)
		name = fields[0]
	}
	if !builtinNames[name] {
		return false, ""
	}

	s.cmdHistory = append(s.cmdHistory, line)
	args := fields[1:]

	switch name {
	case "cd":
		return true, s.builtinCd(args)
	case "pwd":
		wd, err := os.Getwd()
		if err != nil {
			return true, fmt.Sprintf("pwd: %v\n", err)
		}
		return true, wd + "\n"
	case "pushd":
		return true, s.builtinPushd(args)
	case "popd":
		return true, s.builtinPopd()
	case "dirs":
		return true, strings.Join(s.dirStack, " ") + "\n"
	case "alias":
		return true, s.builtinAlias(args)
	case "unalias":
		if len(args) == 1 {
			delete(s.aliases, args[0])
		}
		return true, ""
	case "export", "env", "printenv":
		return true, builtinEnv(args)
	case "unset":
		for _, a := range args {
			os.Unsetenv(a)
		}
		return true, ""
	case "which", "type":
		return true, s.builtinWhich(args)
	case "help":
		return true, helpText
	case "history":
		var b strings.Builder
		for i, h := range s.cmdHistory {
			fmt.Fprintf(&b, "%5d  %s\n", i+1, h)
		}
		return true, b.String()
	case "commands":
		return true, commandsText()
	case "rules":
		return true, s.builtinRules()
	}
	return false, ""
}

func (s *Supervisor) builtinCd(args []string) string {
	dir := s.Invoker.Home
	if len(args) > 0 {
		dir = args[0]
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Sprintf("cd: %v\n", err)
	}
	return ""
}

func (s *Supervisor) builtinPushd(args []string) string {
	wd, _ := os.Getwd()
	if len(args) == 0 {
		return "pushd: no directory specified\n"
	}
	if err := os.Chdir(args[0]); err != nil {
		return fmt.Sprintf("pushd: %v\n", err)
	}
	s.dirStack = append([]string{wd}, s.dirStack...)
	newWd, _ := os.Getwd()
	return newWd + "\n"
}

func (s *Supervisor) builtinPopd() string {
	if len(s.dirStack) == 0 {
		return "popd: directory stack empty\n"
	}
	top := s.dirStack[0]
	s.dirStack = s.dirStack[1:]
	if err := os.Chdir(top); err != nil {
		return fmt.Sprintf("popd: %v\n", err)
	}
	return top + "\n"
}

func (s *Supervisor) builtinAlias(args []string) string {
	if len(args) == 0 {
		var b strings.Builder
		for k, v := range s.aliases {
			fmt.Fprintf(&b, "alias %s='%s'\n", k, v)
		}
		return b.String()
	}
	joined := strings.Join(args, " ")
	eq := strings.IndexByte(joined, '=')
	if eq < 0 {
		return "alias: usage: alias name=value\n"
	}
	name := joined[:eq]
	value := strings.Trim(joined[eq+1:], "'\"")
	s.aliases[name] = value
	return ""
}

func builtinEnv(args []string) string {
	if len(args) == 0 {
		return strings.Join(os.Environ(), "\n") + "\n"
	}
	var b strings.Builder
	for _, a := range args {
		eq := strings.IndexByte(a, '=')
		if eq >= 0 {
			os.Setenv(a[:eq], a[eq+1:])
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", a, os.Getenv(a))
	}
	return b.String()
}

func (s *Supervisor) builtinWhich(args []string) string {
	if len(args) == 0 {
		return "which: missing argument\n"
	}
	path, err := execLookPathForWhich(args[0])
	if err != nil {
		return fmt.Sprintf("%s: not found\n", args[0])
	}
	return path + "\n"
}

// execLookPathForWhich is a seam so tests can fake PATH resolution.
var execLookPathForWhich = exec.LookPath

func (s *Supervisor) builtinRules() string {
	rules := s.Store.ListRules(s.Invoker.Username)
	if len(rules) == 0 {
		return "no matching sudoers entries\n"
	}
	var b strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&b, "%s\n", r.Render())
	}
	return b.String()
}

const helpText = `sudosh built-ins: cd pwd pushd popd dirs alias unalias export unset env printenv which type history commands rules exit quit
any other input is classified, validated against sudoers, and executed as the target user.
`

func commandsText() string {
	return "use 'rules' to list your own sudoers privileges\n"
}
