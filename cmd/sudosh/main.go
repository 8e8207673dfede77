// Command sudosh is the setuid-root entrypoint: it wires the identity
// resolver, policy store, authenticator, automation detector, file-lock
// manager, executor, and audit sink into one supervisor and either drops
// into the interactive prompt or runs a single one-shot command, per
// spec.md §4.K and §6.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// Version, BuildTime, and GitCommit are set at build time with -ldflags,
// matching the teacher lineage's version-reporting convention.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// osExit is a seam so integration tests can observe the intended exit
// code without actually terminating the test process.
var osExit = os.Exit

func main() {
	configureLogger()

	// The supervisor becomes a new session/process-group leader at
	// startup (§4.I), so signals sent to the terminal's foreground
	// process group reach every pipeline child it later forks.
	if err := unix.Setsid(); err != nil {
		log.Debug().Err(err).Msg("setsid failed; process is likely already a session leader")
	}

	if filepath.Base(os.Args[0]) == "sudo" {
		osExit(runSudoCompat(os.Args[1:]))
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sudosh: %v\n", err)
		osExit(1)
	}
}

// configureLogger mirrors cmd/pulse/main.go's ConsoleWriter-for-a-tty,
// plain-JSON-otherwise setup; the tty check is made on stderr, the
// logger's output.
func configureLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if isStderrTTY() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func isStderrTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func versionString() string {
	s := fmt.Sprintf("sudosh %s", Version)
	if BuildTime != "unknown" {
		s += fmt.Sprintf(" (built %s", BuildTime)
		if GitCommit != "unknown" {
			s += fmt.Sprintf(", %s", GitCommit)
		}
		s += ")"
	}
	return s
}
