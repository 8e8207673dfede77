// Package pipeline implements spec.md §4.F: turning the classifier's
// per-stage token segmentation into a validated, path-normalized
// execution plan.
package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sandinak/sudosh/internal/classifier"
)

// Plan is one fully-parsed pipeline ready for the security validator.
type Plan struct {
	Stages []PlanStage
	Raw    string
}

// PlanStage is one stage of a Plan, with redirection targets normalized
// to absolute paths.
type PlanStage struct {
	Argv               []string
	Class              classifier.Class
	Capability         classifier.Capability
	HasTrailingCOption bool
	InputPath          string // "" if no input redirection
	OutputPath         string // "" if no output redirection
	OutputAppend       bool
}

// HomeDirs carries the two home directories tilde expansion may resolve
// against: the invoker's and, when a target user is known, the target's.
type HomeDirs struct {
	Invoker string
	Target  string
}

// Build validates classifier stages into a Plan, per §4.F's sequencing
// rules, and normalizes redirection targets against cwd and the
// supplied home directories.
func Build(raw string, stages []classifier.Stage, cwd string, homes HomeDirs) (*Plan, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	plan := &Plan{Raw: raw}
	last := len(stages) - 1

	for i, s := range stages {
		if i < last && s.Output != nil {
			return nil, fmt.Errorf("stage %d: only the last pipeline stage may redirect output", i+1)
		}
		if i > 0 && s.Input != nil {
			return nil, fmt.Errorf("stage %d: only the first pipeline stage may redirect input", i+1)
		}

		ps := PlanStage{
			Argv:               s.Argv,
			Class:              s.Class,
			Capability:         s.Capability,
			HasTrailingCOption: s.HasTrailingCOption,
		}
		if s.Input != nil {
			resolved, err := normalizeTarget(s.Input.Target, cwd, homes)
			if err != nil {
				return nil, err
			}
			ps.InputPath = resolved
		}
		if s.Output != nil {
			resolved, err := normalizeTarget(s.Output.Target, cwd, homes)
			if err != nil {
				return nil, err
			}
			ps.OutputPath = resolved
			ps.OutputAppend = s.Output.Kind == classifier.TokenRedirectAppend
		}

		plan.Stages = append(plan.Stages, ps)
	}

	return plan, nil
}

// normalizeTarget expands a leading "~" against the invoker or target
// home directory and resolves relative paths against cwd, per §4.F.
func normalizeTarget(target, cwd string, homes HomeDirs) (string, error) {
	if target == "" {
		return "", fmt.Errorf("redirection target is empty")
	}

	switch {
	case target == "~":
		target = homes.Invoker
	case strings.HasPrefix(target, "~/"):
		target = filepath.Join(homes.Invoker, target[2:])
	case strings.HasPrefix(target, "~:"):
		// "~:path" selects the run-as target's home, not the invoker's,
		// a convention this core uses since sudoers syntax has no
		// standard "other user's home" tilde form.
		target = filepath.Join(homes.Target, target[2:])
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(cwd, target)
	}
	return filepath.Clean(target), nil
}
