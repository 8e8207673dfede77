// Package executor implements spec.md §4.I: running an authorized plan
// as the target identity, wiring inter-stage pipes, applying
// redirections, dropping privileges, and collecting the pipeline's exit
// status.
package executor

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/sandinak/sudosh/internal/errs"
	"github.com/sandinak/sudosh/internal/identity"
	"github.com/sandinak/sudosh/internal/pipeline"
)

// execLookPath is a seam over exec.LookPath so tests can supply a fixed
// PATH resolution.
var execLookPath = exec.LookPath

// Result is the pipeline's outcome: the last stage's exit status, plus
// every stage's individual status for audit detail.
type Result struct {
	ExitCode    int
	StageCodes  []int
	Signaled    bool
	SignalName string
}

// Options configures one execution.
type Options struct {
	Plan       *pipeline.Plan
	Target     *identity.Identity
	EnvWhitelist map[string]string
	SafePATH   string
	Stdin      *os.File
	Stdout     *os.File
	Stderr     *os.File
}

// Run wires the stages of the plan into a single OS pipeline and waits
// for it to complete, per §4.I.
func Run(opt Options) (Result, error) {
	stages := opt.Plan.Stages
	n := len(stages)
	if n == 0 {
		return Result{}, errs.New(errs.KindInput, "empty plan")
	}

	cmds := make([]*exec.Cmd, n)
	var pipes []*os.File // read/write ends created between stages, closed after wiring

	for i, stage := range stages {
		path, err := execLookPath(stage.Argv[0])
		if err != nil {
			return Result{}, errs.New(errs.KindExecution, fmt.Sprintf("%s: command not found", stage.Argv[0]))
		}

		cmd := exec.Command(path, stage.Argv[1:]...)
		env := baseEnv(opt.EnvWhitelist, opt.SafePATH)
		applyHardening(env, stage.Class)
		cmd.Env = toSlice(env)
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Credential: &syscall.Credential{
				Uid:    opt.Target.UID,
				Gid:    opt.Target.GID,
				Groups: opt.Target.Groups,
			},
		}

		if i == 0 {
			if stage.InputPath != "" {
				f, err := os.OpenFile(stage.InputPath, os.O_RDONLY, 0)
				if err != nil {
					return Result{}, errs.Wrap(errs.KindResource, "opening input redirection", err)
				}
				pipes = append(pipes, f)
				cmd.Stdin = f
			} else {
				cmd.Stdin = opt.Stdin
			}
		} else {
			r, w, err := os.Pipe()
			if err != nil {
				return Result{}, errs.Wrap(errs.KindResource, "creating pipe", err)
			}
			pipes = append(pipes, r, w)
			cmd.Stdin = r
			cmds[i-1].Stdout = w
		}

		if i == n-1 {
			if stage.OutputPath != "" {
				flags := os.O_WRONLY | os.O_CREATE
				if stage.OutputAppend {
					flags |= os.O_APPEND
				} else {
					flags |= os.O_TRUNC
				}
				f, err := os.OpenFile(stage.OutputPath, flags, 0o644)
				if err != nil {
					return Result{}, errs.Wrap(errs.KindResource, "opening output redirection", err)
				}
				pipes = append(pipes, f)
				cmd.Stdout = f
			} else {
				cmd.Stdout = opt.Stdout
			}
			cmd.Stderr = opt.Stderr
		} else {
			cmd.Stderr = opt.Stderr
		}

		cmds[i] = cmd
	}

	for i, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			killAll(cmds[:i])
			return Result{}, errs.Wrap(errs.KindExecution, fmt.Sprintf("starting %s", stages[i].Argv[0]), err)
		}
		if err := verifyCredentialDrop(cmd.Process.Pid, opt.Target); err != nil {
			killAll(cmds[:i+1])
			return Result{}, err
		}
	}

	// the parent holds no use for pipe ends once every child has them;
	// close them so EOF propagates correctly down the chain.
	for _, p := range pipes {
		p.Close()
	}

	stop := forwardSignals(cmds)
	defer stop()

	stageCodes := make([]int, n)
	var signaled bool
	var signalName string
	for i, cmd := range cmds {
		err := cmd.Wait()
		code, sig, sigName := exitStatus(err)
		stageCodes[i] = code
		if sig {
			signaled = true
			signalName = sigName
		}
	}

	return Result{
		ExitCode:    stageCodes[n-1],
		StageCodes:  stageCodes,
		Signaled:    signaled,
		SignalName:  signalName,
	}, nil
}

// verifyCredentialDrop implements §4.I's "verify the drop by re-reading
// ids": after starting a child with a Credential, it re-reads the
// child's real/effective uid and gid from procfs and confirms they
// actually landed on the target identity rather than trusting the
// syscall silently succeeded.
var verifyCredentialDrop = func(pid int, target *identity.Identity) error {
	ids, err := readProcIDs(pid)
	if err != nil {
		// the process may have already exited (e.g. a very short-lived
		// command); a drop that can no longer be observed isn't a drop
		// failure.
		return nil
	}
	if ids.uid != target.UID || ids.euid != target.UID {
		return errs.New(errs.KindExecution, fmt.Sprintf("privilege drop verification failed: child uid is %d, expected %d", ids.euid, target.UID))
	}
	if ids.gid != target.GID || ids.egid != target.GID {
		return errs.New(errs.KindExecution, fmt.Sprintf("privilege drop verification failed: child gid is %d, expected %d", ids.egid, target.GID))
	}
	return nil
}

type procIDs struct {
	uid, euid uint32
	gid, egid uint32
}

// readProcIDs parses /proc/<pid>/status's Uid/Gid lines, each formatted
// "Uid:\treal\teffective\tsaved\tfilesystem".
func readProcIDs(pid int) (procIDs, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return procIDs{}, err
	}
	defer f.Close()

	var ids procIDs
	var sawUID, sawGID bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "Uid:"):
			if u, e, ok := parseIDLine(line, "Uid:"); ok {
				ids.uid, ids.euid = u, e
				sawUID = true
			}
		case strings.HasPrefix(line, "Gid:"):
			if g, e, ok := parseIDLine(line, "Gid:"); ok {
				ids.gid, ids.egid = g, e
				sawGID = true
			}
		}
	}
	if !sawUID || !sawGID {
		return procIDs{}, fmt.Errorf("proc status for pid %d missing Uid/Gid lines", pid)
	}
	return ids, nil
}

func parseIDLine(line, prefix string) (real, effective uint32, ok bool) {
	fields := strings.Fields(strings.TrimPrefix(line, prefix))
	if len(fields) < 2 {
		return 0, 0, false
	}
	r, err1 := strconv.ParseUint(fields[0], 10, 32)
	e, err2 := strconv.ParseUint(fields[1], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uint32(r), uint32(e), true
}

func exitStatus(err error) (code int, signaled bool, signalName string) {
	if err == nil {
		return 0, false, ""
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return 128 + int(ws.Signal()), true, ws.Signal().String()
			}
			return ws.ExitStatus(), false, ""
		}
		return exitErr.ExitCode(), false, ""
	}
	return 1, false, ""
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

func killAll(cmds []*exec.Cmd) {
	for _, cmd := range cmds {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

// forwardSignals relays SIGINT/SIGTERM/SIGQUIT received by the
// supervisor to every stage's process group, per §4.I. It returns a
// stop function that must be called once the pipeline finishes.
func forwardSignals(cmds []*exec.Cmd) func() {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-ch:
				// pid 0 targets this process's own group; every stage
				// inherits that group since none set its own (the
				// supervisor became the session/group leader at
				// startup, per §4.I).
				if err := unix.Kill(0, sig.(syscall.Signal)); err != nil {
					log.Debug().Err(err).Msg("signal forward to process group failed")
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		signal.Stop(ch)
	}
}
