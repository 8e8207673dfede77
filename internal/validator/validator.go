// Package validator implements spec.md §4.G: the security validator that
// admits or rejects a parsed plan before the executor ever runs.
package validator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sandinak/sudosh/internal/classifier"
	"github.com/sandinak/sudosh/internal/pipeline"
	"github.com/sandinak/sudosh/internal/policy"

	"github.com/sandinak/sudosh/internal/errs"
)

// defaultMaxCommandLength and defaultMaxPipelineStages mirror the configurable
// defaults from internal/config; callers pass the live configured value.
const (
	defaultMaxCommandLength = 4096
	defaultMaxPipelineStages = 8
)

// Request carries everything the validator needs beyond the plan itself.
type Request struct {
	Plan                *pipeline.Plan
	User                string
	Target              string
	Automation          bool
	InteractiveConfirm  func(prompt string) bool
	Store               *policy.Store
	MaxCommandLength     int
	MaxPipelineStages     int
	InvokerHome          string
}

// Result is the validator's admit/reject decision.
type Result struct {
	Admitted bool
	Reason   string
	// RequiresAuth is true when the matched rule requires
	// re-authentication (i.e. it is not a nopasswd rule).
	RequiresAuth bool
}

// Validate runs every per-stage and per-plan check from §4.G in order,
// returning the first rejection encountered.
func Validate(req Request) (Result, error) {
	if req.Plan == nil || len(req.Plan.Stages) == 0 {
		return Result{}, errs.New(errs.KindInput, "empty plan")
	}

	maxLen := req.MaxCommandLength
	if maxLen == 0 {
		maxLen = defaultMaxCommandLength
	}
	maxStages := req.MaxPipelineStages
	if maxStages == 0 {
		maxStages = defaultMaxPipelineStages
	}

	if len(req.Plan.Raw) > maxLen {
		return Result{}, errs.New(errs.KindInput, fmt.Sprintf("command exceeds maximum length of %d", maxLen)).
			WithSuggestion("shorten the command")
	}
	if len(req.Plan.Stages) > maxStages {
		return Result{}, errs.New(errs.KindInput, fmt.Sprintf("pipeline exceeds maximum of %d stages", maxStages))
	}

	// Authorization is checked before any stage is allowed to trigger an
	// interactive confirmation or an automation-rejection message: an
	// unauthorized command must be rejected outright, with no prompt and
	// no fork, per §8 scenario 2.
	decision, err := authorizationDecision(req)
	if err != nil {
		return Result{}, err
	}

	multiStage := len(req.Plan.Stages) > 1

	for i, stage := range req.Plan.Stages {
		if err := classGate(stage); err != nil {
			return Result{}, err
		}
		if err := injectionRescan(stage); err != nil {
			return Result{}, err
		}
		if err := pathTraversalScan(stage); err != nil {
			return Result{}, err
		}
		if err := redirectionTargetPolicy(stage, req); err != nil {
			return Result{}, err
		}
		if multiStage && !stage.Class.PipelineSafe() {
			return Result{}, errs.New(errs.KindInput,
				fmt.Sprintf("stage %d (%s) may not appear in a multi-stage pipeline", i+1, stage.Class)).
				WithSuggestion("run this command on its own, without a pipe")
		}

		if stage.Class == classifier.ClassDangerous {
			res, err := dangerousFlagPolicy(stage, req)
			if err != nil {
				return Result{}, err
			}
			if !res.Admitted {
				return res, nil
			}
		}
	}

	return decision, nil
}

func classGate(s pipeline.PlanStage) error {
	switch s.Class {
	case classifier.ClassNonSecureEditor:
		return errs.New(errs.KindInput, fmt.Sprintf("%s is a non-secure editor and cannot be used", s.Argv[0])).
			WithSuggestion("use vi, vim, view, nano, or pico instead")
	case classifier.ClassPrivilegeEscalation:
		return errs.New(errs.KindInput, fmt.Sprintf("%s may not be invoked from within this shell", s.Argv[0]))
	case classifier.ClassShell:
		if s.HasTrailingCOption {
			return errs.New(errs.KindInput, "shell -c invocations are not permitted")
		}
	}
	return nil
}

// injectionMetacharacters re-checks raw argv for characters that should
// have been rejected by the tokenizer, catching anything that slipped
// through a quoting trick.
const injectionMetacharacters = ";&`)"

func injectionRescan(s pipeline.PlanStage) error {
	for _, arg := range s.Argv {
		if strings.ContainsRune(arg, 0) {
			return errs.New(errs.KindInput, "argument contains a NUL byte")
		}
		for _, c := range injectionMetacharacters {
			if strings.ContainsRune(arg, c) {
				return errs.New(errs.KindInput, fmt.Sprintf("argument contains disallowed character %q", string(c)))
			}
		}
		if strings.Contains(arg, "$(") || strings.Contains(arg, "||") || strings.Contains(arg, "&&") {
			return errs.New(errs.KindInput, "argument contains a shell substitution or control operator")
		}
	}
	return nil
}

// fileOperatingClasses are classes whose arguments are file paths subject
// to the path-traversal scan.
var fileOperatingClasses = map[classifier.Class]struct{}{
	classifier.ClassTextProcessing:  {},
	classifier.ClassSecureEditor:    {},
	classifier.ClassDangerous:       {},
	classifier.ClassPager:           {},
	classifier.ClassConditionallyBlocked: {},
}

func pathTraversalScan(s pipeline.PlanStage) error {
	if _, ok := fileOperatingClasses[s.Class]; !ok {
		return nil
	}
	for _, arg := range s.Argv[1:] {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if containsEscapingTraversal(arg) {
			return errs.New(errs.KindInput, fmt.Sprintf("path %q contains a traversal sequence", arg)).
				WithSuggestion("use an absolute path under an authorized directory")
		}
	}
	return nil
}

// containsEscapingTraversal reports whether path contains a literal ".."
// path segment, per §4.G ("reject any argument containing '..'
// segments"). This is checked against the raw argument, not a Clean'd
// form: Clean silently resolves ".." away for absolute paths, which
// would hide exactly the traversal attempt this scan exists to catch.
func containsEscapingTraversal(path string) bool {
	for _, seg := range strings.Split(path, string(filepath.Separator)) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// redirectionTargetPolicy enforces the home/tmp/var-tmp allowlist from
// §4.G; targets are already absolute and Clean'd by internal/pipeline.
// A rejected target gets a directory-specific message per §4.G/§7/§8
// scenario 6, rather than one generic "outside permitted directories"
// string for every target.
func redirectionTargetPolicy(s pipeline.PlanStage, req Request) error {
	for _, target := range []string{s.InputPath, s.OutputPath} {
		if target == "" {
			continue
		}
		if msg := redirectionRejectionReason(target, req.InvokerHome); msg != "" {
			return errs.New(errs.KindInput, msg).
				WithSuggestion("redirect to a path under your home directory, /tmp, or /var/tmp")
		}
	}
	return nil
}

// redirectionRejectionReason returns the directory-specific rejection
// message for target, or "" if target is a permitted redirection
// destination.
func redirectionRejectionReason(target, invokerHome string) string {
	if strings.HasPrefix(target, "/tmp/") || target == "/tmp" {
		return ""
	}
	if strings.HasPrefix(target, "/var/tmp/") || target == "/var/tmp" {
		return ""
	}
	if invokerHome != "" && invokerHome != "/" && (target == invokerHome || strings.HasPrefix(target, invokerHome+"/")) {
		return ""
	}

	switch {
	case target == "/etc" || target == "/etc/" || strings.HasPrefix(target, "/etc/"):
		return "redirection to system configuration directory (/etc/) is not allowed"
	case target == "/root" || target == "/var/root" || strings.HasPrefix(target, "/root/") || strings.HasPrefix(target, "/var/root/"):
		return "redirection to the root account's home directory is not allowed"
	case target == "/boot" || strings.HasPrefix(target, "/boot/"):
		return "redirection to the boot directory (/boot/) is not allowed"
	case target == "/var/log" || strings.HasPrefix(target, "/var/log/"):
		return "redirection to the system log directory (/var/log/) is not allowed"
	default:
		return fmt.Sprintf("redirection target %q is outside permitted directories", target)
	}
}
