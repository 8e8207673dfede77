package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandinak/sudosh/internal/supervisor"
)

// cliOptions holds every native-mode flag from spec.md §6.
var cliOptions struct {
	verbose         bool
	listLevel       int
	logSession      string
	user            string
	command         string
	edit            bool
	nonInteractive  bool
	invalidate      bool
	removeCache     bool
	ansibleDetect   bool
	noAnsibleDetect bool
	ansibleForce    bool
	ansibleVerbose  bool
}

var rootCmd = &cobra.Command{
	Use:           "sudosh [command [args...]]",
	Short:         "interactive, audited privilege-elevation shell",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	rootCmd.SetVersionTemplate(versionString() + "\n")

	flags := rootCmd.Flags()
	flags.BoolVarP(&cliOptions.verbose, "verbose", "v", false, "enable verbose logging")
	flags.CountVarP(&cliOptions.listLevel, "list", "l", "show sudoers rules for the invoker (repeat for per-class detail)")
	flags.StringVarP(&cliOptions.logSession, "log-session", "L", "", "duplicate session I/O to FILE")
	flags.StringVarP(&cliOptions.user, "user", "u", "", "run commands as USER")
	flags.StringVarP(&cliOptions.command, "command", "c", "", "run one command and exit")
	flags.BoolVarP(&cliOptions.edit, "edit", "e", false, "edit-files mode: open the given files in a secure editor")
	flags.BoolVarP(&cliOptions.nonInteractive, "non-interactive", "n", false, "fail instead of prompting")
	flags.BoolVarP(&cliOptions.invalidate, "invalidate", "k", false, "invalidate cached authentication and exit")
	flags.BoolVarP(&cliOptions.removeCache, "remove-cache", "K", false, "remove the authentication cache entirely")
	flags.BoolVar(&cliOptions.ansibleDetect, "ansible-detect", true, "enable automation/AI-assistant detection")
	flags.BoolVar(&cliOptions.noAnsibleDetect, "no-ansible-detect", false, "disable automation/AI-assistant detection")
	flags.BoolVar(&cliOptions.ansibleForce, "ansible-force", false, "force the automation classification")
	flags.BoolVar(&cliOptions.ansibleVerbose, "ansible-verbose", false, "log the automation detector's reasoning")
}

func runRoot(cmd *cobra.Command, args []string) error {
	sup, cleanup, err := bootstrapSupervisor(bootstrapOptions{
		User:              cliOptions.user,
		NonInteractive:    cliOptions.nonInteractive,
		ForceAutomation:   cliOptions.ansibleForce,
		DisableAutomation: cliOptions.noAnsibleDetect || !cliOptions.ansibleDetect,
		AutomationVerbose: cliOptions.ansibleVerbose,
		LogSessionPath:    cliOptions.logSession,
		Verbose:           cliOptions.verbose,
	})
	if err != nil {
		fatal(err)
		return nil
	}
	defer cleanup()

	switch {
	case cliOptions.invalidate, cliOptions.removeCache:
		if err := sup.Authenticator.Invalidate(sup.Invoker.Username); err != nil {
			fatal(err)
			return nil
		}
		osExit(0)

	case cliOptions.listLevel > 0:
		printRules(sup, cliOptions.listLevel)
		osExit(0)

	case cliOptions.edit:
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "sudosh: -e requires at least one file argument")
			osExit(2)
		}
		osExit(sup.RunOneShot("vi " + strings.Join(args, " ")))

	case cliOptions.command != "":
		osExit(sup.RunOneShot(cliOptions.command))

	case len(args) > 0:
		osExit(sup.RunOneShot(strings.Join(args, " ")))

	default:
		osExit(sup.RunInteractive())
	}
	return nil
}

// printRules implements -l/-ll (§6): the base listing renders each
// matching rule in sudoers syntax; -ll adds per-rule provenance and
// nopasswd detail.
func printRules(sup *supervisor.Supervisor, level int) {
	rules := sup.Store.ListRules(sup.Invoker.Username)
	if len(rules) == 0 {
		fmt.Println("no matching sudoers entries")
		return
	}
	for _, r := range rules {
		fmt.Println(r.Render())
		if level >= 2 {
			fmt.Printf("    provenance=%s nopasswd=%v\n", r.Provenance, r.NoPasswd)
		}
	}
}
