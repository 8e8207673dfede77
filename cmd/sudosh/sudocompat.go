package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sandinak/sudosh/internal/classifier"
)

// rejectedSudoFlags are the traditional sudo options that would
// undermine this core's security model (§6): they are rejected outright
// rather than silently ignored.
var rejectedSudoFlags = map[string]bool{
	"-E": true, "-H": true, "-i": true, "-s": true,
	"-A": true, "-S": true, "-b": true,
}

// runSudoCompat implements §6's sudo-compat mode: active when the
// executable is invoked under the name "sudo", it accepts only the
// documented strict flag subset and runs the same Supervisor underneath.
func runSudoCompat(args []string) int {
	var (
		showVersion, refreshOnly, invalidate, nonInteractive bool
		user                                                 string
		rest                                                 []string
	)

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-V":
			showVersion = true
		case a == "-v":
			refreshOnly = true
		case a == "-k":
			invalidate = true
		case a == "-n":
			nonInteractive = true
		case a == "-u":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "sudo: option requires an argument -- 'u'")
				return 2
			}
			user = args[i+1]
			i++
		case rejectedSudoFlags[a]:
			fmt.Fprintf(os.Stderr, "sudo: option %s is not supported by this sudo-compatible shell\n", a)
			return 2
		default:
			rest = append(rest, a)
		}
	}

	if showVersion {
		fmt.Println(versionString())
		return 0
	}

	sup, cleanup, err := bootstrapSupervisor(bootstrapOptions{
		User:           user,
		NonInteractive: nonInteractive,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cleanup()

	if invalidate {
		if err := sup.Authenticator.Invalidate(sup.Invoker.Username); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	if refreshOnly && len(rest) == 0 {
		if err := sup.Authenticator.Ensure(sup.Invoker.Username, sup.TTY, sup.Invoker.UID, sup.Invoker.Hostname); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		return 0
	}

	if len(rest) == 0 {
		return sup.RunInteractive()
	}

	line := strings.Join(rest, " ")
	if looksLikeDirectShell(line) {
		fmt.Fprintln(os.Stderr, "sudo: direct shell invocations are not permitted; dropping into the interactive sudosh prompt instead")
		return sup.RunInteractive()
	}
	return sup.RunOneShot(line)
}

// looksLikeDirectShell reports whether the first word of line classifies
// as a shell, the condition that triggers §6's "redirected to the
// interactive supervisor" behavior (scenario 4) instead of rejection.
func looksLikeDirectShell(line string) bool {
	tokens, err := classifier.Tokenize(line)
	if err != nil {
		return false
	}
	stages, err := classifier.Classify(tokens)
	if err != nil || len(stages) == 0 {
		return false
	}
	return stages[0].Class == classifier.ClassShell
}
