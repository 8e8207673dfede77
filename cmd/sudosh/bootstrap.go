package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/sandinak/sudosh/internal/audit"
	"github.com/sandinak/sudosh/internal/auth"
	"github.com/sandinak/sudosh/internal/automation"
	"github.com/sandinak/sudosh/internal/config"
	"github.com/sandinak/sudosh/internal/filelock"
	"github.com/sandinak/sudosh/internal/identity"
	"github.com/sandinak/sudosh/internal/policy"
	"github.com/sandinak/sudosh/internal/supervisor"
)

// sssdSocketPath is the conventional local socket the sssd sudo
// responder listens on (§6 "SSSD protocol"); a missing socket simply
// falls back to local-only rules per §4.B's failure modes.
const sssdSocketPath = "/var/lib/sss/pipes/sudo"

// bootstrapOptions carries every CLI-derived knob that feeds into
// constructing a Supervisor, shared between native and sudo-compat mode.
type bootstrapOptions struct {
	User              string
	NonInteractive    bool
	ForceAutomation   bool
	DisableAutomation bool
	AutomationVerbose bool
	LogSessionPath    string
	Verbose           bool
}

// bootstrapSupervisor builds every component from §4.A-§4.J and threads
// them into one Supervisor, per §4.K. The returned cleanup func must be
// called once the supervisor has finished running.
func bootstrapSupervisor(opt bootstrapOptions) (*supervisor.Supervisor, func(), error) {
	cfg := config.Load()
	if opt.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	resolver := identity.NewResolver()
	invoker, err := resolver.ResolveInvoker()
	if err != nil {
		return nil, nil, err
	}

	store := policy.NewStore(policy.Options{
		SudoersPath: cfg.SudoersPath,
		IncludeDir:  cfg.SudoersIncludeDir,
		SSSD:        policy.NewSSSDClient(sssdSocketPath),
		Host:        invoker.Hostname,
	})

	cache := auth.NewCache(cfg.CacheDir(), cfg.AuthCacheTimeout)
	cache.Reap()
	throttle := auth.NewThrottle()
	authenticator := auth.New(auth.NewPAMVerifier("sudo"), cache, throttle)

	locks := filelock.New(cfg.LockDir(), cfg.LockTimeout)
	locks.ReapStale()

	detector := automation.New()
	detector.Threshold = cfg.AutomationThreshold
	detector.ForceAutomation = opt.ForceAutomation
	if opt.DisableAutomation {
		detector.Environ = func() []string { return nil }
		detector.ParentChain = func(int) []string { return nil }
		detector.StdinIsTTY = func() bool { return true }
		detector.StdoutIsTTY = func() bool { return true }
	}

	auditSink, closeAudit := buildAuditSink(cfg)

	sup := supervisor.New(supervisor.Options{
		Config: cfg, Invoker: invoker, Resolver: resolver, Store: store,
		Authenticator: authenticator, Detector: detector, Locks: locks, Audit: auditSink,
		TTY: ttyName(), Target: opt.User,
		In: os.Stdin, Out: os.Stdout, Err: os.Stderr,
	})
	sup.NonInteractive = opt.NonInteractive

	if opt.AutomationVerbose {
		log.Info().Strs("reasons", sup.Classification.Reasons).
			Int("confidence", sup.Classification.Confidence).
			Bool("automation", sup.Classification.IsAutomation).
			Msg("automation detection result")
	}

	var sessionLogClose func()
	if opt.LogSessionPath != "" {
		sup.Out, sessionLogClose = teeToFile(sup.Out, opt.LogSessionPath)
	}

	cleanup := func() {
		closeAudit()
		store.Close()
		if sessionLogClose != nil {
			sessionLogClose()
		}
	}
	return sup, cleanup, nil
}

// buildAuditSink opens the run directory's hash-chained audit log and
// mirrors it to syslog, degrading to stderr-only logging (never fatal)
// when either resource is unavailable, per §7's "resource errors ...
// degrade gracefully".
func buildAuditSink(cfg *config.Config) (*audit.Sink, func()) {
	if err := os.MkdirAll(cfg.RunDir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", cfg.RunDir).Msg("cannot create run directory, audit trail degraded to stderr")
	}

	path := filepath.Join(cfg.RunDir, "audit.jsonl")
	var w io.Writer = os.Stderr
	closer := func() {}
	if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err == nil {
		w = f
		closer = func() { f.Close() }
	} else {
		log.Warn().Err(err).Str("path", path).Msg("cannot open audit log, writing audit events to stderr instead")
	}

	sysWriter, err := audit.NewSyslog(cfg.ProgramTag)
	if err != nil {
		log.Warn().Err(err).Msg("syslog unavailable, audit syslog mirror disabled")
		sysWriter = nil
	}

	return audit.New(w, sysWriter, cfg.ProgramTag), closer
}

// ttyName reports the controlling terminal's device path via the Linux
// procfs self-fd link, the cheapest portable way to name stdin's tty
// without a direct ttyname(3) binding. Absence (e.g. stdin redirected
// from a non-tty) yields "unknown", which the authentication cache and
// audit trail both treat as a valid, if generic, tty identity.
func ttyName() string {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "unknown"
	}
	if link, err := os.Readlink("/proc/self/fd/0"); err == nil {
		return link
	}
	return "unknown"
}

// teeToFile duplicates w's writes to path as well, for the -L/--log-session
// flag (§6). The returned closer must be called on exit.
func teeToFile(w io.Writer, path string) (io.Writer, func()) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("cannot open session log file")
		return w, func() {}
	}
	return io.MultiWriter(w, f), func() { f.Close() }
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	osExit(1)
}
