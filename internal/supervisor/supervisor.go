// Package supervisor implements spec.md §4.K: the single-threaded
// reading-line/parsing/validating/authorizing/prompting/executing/waiting
// loop that ties every other component together.
package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sandinak/sudosh/internal/audit"
	"github.com/sandinak/sudosh/internal/auth"
	"github.com/sandinak/sudosh/internal/automation"
	"github.com/sandinak/sudosh/internal/classifier"
	"github.com/sandinak/sudosh/internal/config"
	"github.com/sandinak/sudosh/internal/errs"
	"github.com/sandinak/sudosh/internal/executor"
	"github.com/sandinak/sudosh/internal/filelock"
	"github.com/sandinak/sudosh/internal/identity"
	"github.com/sandinak/sudosh/internal/pipeline"
	"github.com/sandinak/sudosh/internal/policy"
	"github.com/sandinak/sudosh/internal/validator"
)

// Supervisor is the process-wide context threaded through every
// component, replacing the teacher lineage's global mutable state with
// one owned, passed-around value (§9 design note).
type Supervisor struct {
	Config      *config.Config
	Invoker     *identity.Identity
	Resolver    *identity.Resolver
	Store       *policy.Store
	Authenticator *auth.Authenticator
	Detector    *automation.Detector
	Locks       *filelock.Manager
	Audit       *audit.Sink

	TTY         string
	Target      string
	NonInteractive bool
	Classification automation.Classification

	In  io.Reader
	Out io.Writer
	Err io.Writer

	interrupted bool

	// dirStack, aliases, and cmdHistory back the pushd/popd/dirs,
	// alias/unalias, and history built-ins for the lifetime of this
	// Supervisor; each instance owns its own, rather than sharing
	// process-wide state (§9 design note).
	dirStack   []string
	aliases    map[string]string
	cmdHistory []string
}

// Options configures a new Supervisor; all fields are required except
// TTY, which defaults to "unknown" when empty.
type Options struct {
	Config        *config.Config
	Invoker       *identity.Identity
	Resolver      *identity.Resolver
	Store         *policy.Store
	Authenticator *auth.Authenticator
	Detector      *automation.Detector
	Locks         *filelock.Manager
	Audit         *audit.Sink
	TTY           string
	Target        string
	In            io.Reader
	Out           io.Writer
	Err           io.Writer
}

// New builds a Supervisor and classifies the session up front, per
// §4.D ("classifies the session before the supervisor prompts").
func New(opt Options) *Supervisor {
	tty := opt.TTY
	if tty == "" {
		tty = "unknown"
	}
	s := &Supervisor{
		Config: opt.Config, Invoker: opt.Invoker, Resolver: opt.Resolver,
		Store: opt.Store, Authenticator: opt.Authenticator, Detector: opt.Detector,
		Locks: opt.Locks, Audit: opt.Audit, TTY: tty, Target: opt.Target,
		In: opt.In, Out: opt.Out, Err: opt.Err,
		aliases: map[string]string{},
	}
	if s.Detector != nil {
		s.Classification = s.Detector.Classify()
	}
	return s
}

// RunInteractive is the *reading-line* loop entry point: it repeatedly
// reads a line, runs it through the pipeline, and reprompts, until EOF,
// "exit"/"quit", or the inactivity timer fires.
func (s *Supervisor) RunInteractive() int {
	correlation := audit.CorrelationID()
	if s.Audit != nil {
		s.Audit.SessionStart(s.Invoker.Username, s.TTY, s.sessionType(), correlation)
		defer s.Audit.SessionEnd(s.Invoker.Username, s.TTY, correlation)
	}

	if err := s.refuseIfAIAssistant(correlation); err != nil {
		fmt.Fprintln(s.Err, err.Error())
		return errs.ExitCode(err)
	}

	reader := bufio.NewReader(s.In)
	timeout := s.inactivityTimeout()

	for {
		fmt.Fprint(s.Out, s.prompt())

		line, err := s.readLineWithTimeout(reader, timeout)
		if err == errInactivityTimeout {
			fmt.Fprintln(s.Err, "\nsession timed out due to inactivity")
			return 0
		}
		if err != nil {
			fmt.Fprintln(s.Out)
			return 0 // EOF: clean exit
		}

		if line == "" {
			continue // empty line is a no-op, per §8
		}
		if line == "exit" || line == "quit" {
			return 0
		}

		if handled, output := s.runBuiltin(line); handled {
			fmt.Fprint(s.Out, output)
			continue
		}

		s.runOne(line, correlation)
	}
}

// RunOneShot executes exactly one command line (the `-c` CLI flag or a
// sudo-compat positional command) and returns its exit code, per §4.K's
// "one-shot mode ... skips the line reader and runs exactly one plan".
func (s *Supervisor) RunOneShot(line string) int {
	correlation := audit.CorrelationID()
	if s.Audit != nil {
		s.Audit.SessionStart(s.Invoker.Username, s.TTY, s.sessionType(), correlation)
		defer s.Audit.SessionEnd(s.Invoker.Username, s.TTY, correlation)
	}

	if err := s.refuseIfAIAssistant(correlation); err != nil {
		fmt.Fprintln(s.Err, err.Error())
		return errs.ExitCode(err)
	}

	if handled, output := s.runBuiltin(line); handled {
		fmt.Fprint(s.Out, output)
		return 0
	}

	return s.runOne(line, correlation)
}

func (s *Supervisor) sessionType() audit.SessionType {
	if s.Classification.IsAutomation {
		return audit.SessionAutomation
	}
	return audit.SessionInteractive
}

func (s *Supervisor) refuseIfAIAssistant(correlation string) error {
	if !s.Classification.IsAIAssistant {
		return nil
	}
	reason := "AI assistant execution environment detected"
	if s.Audit != nil {
		s.Audit.AIBlocked(s.Invoker.Username, reason, correlation)
	}
	return errs.New(errs.KindFatal, reason).WithSuggestion("run this tool from an interactive human session")
}

func (s *Supervisor) prompt() string {
	return fmt.Sprintf("sudosh:%s$ ", s.Target)
}

var errInactivityTimeout = fmt.Errorf("inactivity timeout")

func (s *Supervisor) inactivityTimeout() time.Duration {
	if s.Config == nil || s.Config.InactivityTimeout <= 0 {
		return 300 * time.Second
	}
	return s.Config.InactivityTimeout
}

// readLineWithTimeout reads one line, racing it against the inactivity
// timer described in §4.K/§5.
func (s *Supervisor) readLineWithTimeout(reader *bufio.Reader, timeout time.Duration) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := reader.ReadString('\n')
		ch <- result{trimNewline(line), err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && r.line == "" {
			return "", r.err
		}
		return r.line, nil
	case <-time.After(timeout):
		return "", errInactivityTimeout
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// runOne drives one command line through classify -> pipeline ->
// validate -> authorize -> execute, emitting exactly one terminal audit
// event per §8 invariant 7.
func (s *Supervisor) runOne(line string, correlation string) int {
	tokens, err := classifier.Tokenize(line)
	if err != nil {
		s.reject(line, "tokenizer", err.Error(), correlation)
		return 2
	}
	stages, err := classifier.Classify(tokens)
	if err != nil {
		s.reject(line, "classifier", err.Error(), correlation)
		return 2
	}

	cwd, _ := os.Getwd()
	homes := pipeline.HomeDirs{Invoker: s.Invoker.Home, Target: s.targetHome()}
	plan, err := pipeline.Build(line, stages, cwd, homes)
	if err != nil {
		s.reject(line, "pipeline", err.Error(), correlation)
		return 2
	}

	maxLen, maxStages := 4096, 8
	if s.Config != nil {
		if s.Config.MaxCommandLength > 0 {
			maxLen = s.Config.MaxCommandLength
		}
		if s.Config.MaxPipelineStages > 0 {
			maxStages = s.Config.MaxPipelineStages
		}
	}

	res, err := validator.Validate(validator.Request{
		Plan: plan, User: s.Invoker.Username, Target: s.Target,
		Automation: s.Classification.IsAutomation, Store: s.Store,
		InvokerHome: s.Invoker.Home, MaxCommandLength: maxLen, MaxPipelineStages: maxStages,
		InteractiveConfirm: s.confirm,
	})
	if err != nil {
		s.reject(line, "validator", err.Error(), correlation)
		return 2
	}
	if !res.Admitted {
		s.reject(line, "validator", "not confirmed", correlation)
		return 2
	}

	if res.RequiresAuth && s.Authenticator != nil {
		if err := s.Authenticator.Ensure(s.Invoker.Username, s.TTY, s.Invoker.UID, s.Invoker.Hostname); err != nil {
			s.reject(line, "authenticator", err.Error(), correlation)
			return errs.ExitCode(err)
		}
	}

	var locks []*filelock.Handle
	defer func() {
		for _, h := range locks {
			h.Release()
		}
	}()
	for _, stage := range plan.Stages {
		if stage.Class != classifier.ClassSecureEditor && stage.Class != classifier.ClassNonSecureEditor {
			continue
		}
		if s.Locks == nil || !s.Locks.Usable() {
			continue
		}
		for _, arg := range stage.Argv[1:] {
			if len(arg) == 0 || arg[0] == '-' {
				continue
			}
			h, err := s.Locks.Acquire(arg, s.Invoker.Username, os.Getpid())
			if err != nil {
				s.reject(line, "filelock", err.Error(), correlation)
				return 2
			}
			locks = append(locks, h)
		}
	}

	target, err := s.Resolver.ResolveTarget(s.Target)
	if err != nil {
		s.reject(line, "identity", err.Error(), correlation)
		return 1
	}

	multiStage := len(plan.Stages) > 1
	if multiStage && s.Audit != nil {
		s.Audit.PipelineStart(s.Invoker.Username, line, correlation)
	}

	env := s.Config.EnvPassthroughMap(s.Invoker)
	result, err := executor.Run(executor.Options{
		Plan: plan, Target: target, EnvWhitelist: env,
		SafePATH: s.safePATH(), Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr,
	})
	if err != nil {
		if multiStage && s.Audit != nil {
			s.Audit.PipelineEnd(s.Invoker.Username, line, correlation, errs.ExitCode(err))
		}
		s.reject(line, "executor", err.Error(), correlation)
		return errs.ExitCode(err)
	}

	if s.Audit != nil {
		if multiStage {
			s.Audit.PipelineEnd(s.Invoker.Username, line, correlation, result.ExitCode)
		}
		s.Audit.Command(s.Invoker.Username, s.Target, line, correlation, result.ExitCode)
	}
	return result.ExitCode
}

func (s *Supervisor) reject(line, stage, reason, correlation string) {
	fmt.Fprintf(s.Err, "%s: %s\n", stage, reason)
	if s.Audit != nil {
		s.Audit.Violation(s.Invoker.Username, line, stage, reason, correlation)
	}
}

func (s *Supervisor) confirm(prompt string) bool {
	if s.NonInteractive || s.Classification.IsAutomation {
		return false
	}
	fmt.Fprintf(s.Err, "%s [y/N] ", prompt)
	reader := bufio.NewReader(s.In)
	answer, _ := reader.ReadString('\n')
	answer = trimNewline(answer)
	return answer == "y" || answer == "Y" || answer == "yes"
}

func (s *Supervisor) targetHome() string {
	t, err := s.Resolver.ResolveTarget(s.Target)
	if err != nil {
		return "/root"
	}
	return t.Home
}

func (s *Supervisor) safePATH() string {
	if s.Config != nil && s.Config.PATHWhitelist != "" {
		return s.Config.PATHWhitelist
	}
	return "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
}

// Interrupted reports whether Interrupt has been called, the single
// interrupted boolean of §9's strategy.
func (s *Supervisor) Interrupted() bool { return s.interrupted }

// Interrupt marks the session interrupted. No signal handler in this
// module calls it, and the read loop does not consult Interrupted.
func (s *Supervisor) Interrupt() { s.interrupted = true }
