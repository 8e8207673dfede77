package validator

import (
	"strings"

	"github.com/sandinak/sudosh/internal/errs"
	"github.com/sandinak/sudosh/internal/pipeline"
)

// recursiveFlags and forceFlags are the flag spellings §4.G names
// explicitly: long forms, short forms, and short forms combined with
// other single-letter flags (e.g. "-rf").
var recursiveFlags = []string{"-R", "-r", "--recursive"}
var forceFlags = []string{"-f", "--force"}

func hasAnyFlag(argv []string, flags []string) bool {
	for _, arg := range argv {
		if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
			for _, f := range flags {
				if arg == f {
					return true
				}
			}
			continue
		}
		// combined short-flag cluster, e.g. "-rf", "-fr", "-xvf"
		letters := arg[1:]
		for _, f := range flags {
			if len(f) == 2 && f[0] == '-' && strings.ContainsRune(letters, rune(f[1])) {
				return true
			}
			if f == arg {
				return true
			}
		}
	}
	return false
}

// dangerousFlagPolicy implements §4.G's recursive/force scan: such a
// stage additionally requires the invoker have global "ALL" privilege,
// or explicit interactive confirmation; an automation-classified session
// cannot confirm interactively and is rejected outright.
func dangerousFlagPolicy(s pipeline.PlanStage, req Request) (Result, error) {
	recursive := hasAnyFlag(s.Argv[1:], recursiveFlags)
	force := hasAnyFlag(s.Argv[1:], forceFlags)
	if !recursive && !force {
		return Result{Admitted: true}, nil
	}

	if req.Store != nil && req.Store.IsAuthorized(req.User, "ALL", req.Target) {
		return Result{Admitted: true}, nil
	}

	if req.Automation {
		return Result{}, errs.New(errs.KindInput, "recursive or forced destructive command rejected under automation classification").
			WithSuggestion("run this command interactively if it is genuinely intended")
	}

	if req.InteractiveConfirm == nil || !req.InteractiveConfirm(confirmPrompt(s)) {
		return Result{Admitted: false, Reason: "not confirmed"}, nil
	}

	return Result{Admitted: true}, nil
}

func confirmPrompt(s pipeline.PlanStage) string {
	return "this command uses a recursive or forced flag (" + strings.Join(s.Argv, " ") + "); proceed?"
}
