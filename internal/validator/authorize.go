package validator

import (
	"fmt"
	"strings"

	"github.com/sandinak/sudosh/internal/classifier"
	"github.com/sandinak/sudosh/internal/errs"
)

// authorizationDecision consults the policy store for every non-builtin
// stage in the plan. A plan is admitted only if every stage's command is
// covered by a matching sudoers rule for the requested run-as target;
// the overall RequiresAuth is true unless every matched rule is
// nopasswd.
func authorizationDecision(req Request) (Result, error) {
	if req.Store == nil {
		return Result{}, errs.New(errs.KindPolicy, "policy store unavailable")
	}

	requiresAuth := false
	for _, stage := range req.Plan.Stages {
		if stage.Class == classifier.ClassBuiltin {
			continue
		}
		canonical := canonicalCommand(stage.Argv)
		decision := req.Store.Authorize(req.User, canonical, req.Target)
		if !decision.Allowed {
			return Result{}, errs.New(errs.KindPolicy,
				fmt.Sprintf("not authorized to run %q as %s", canonical, req.Target)).
				WithSuggestion("ask an administrator to grant this command in the sudoers policy")
		}
		if !decision.NoPasswd {
			requiresAuth = true
		}
	}

	return Result{Admitted: true, RequiresAuth: requiresAuth}, nil
}

// canonicalCommand renders a stage's argv back into the space-joined
// string form sudoers command patterns are matched against.
func canonicalCommand(argv []string) string {
	return strings.Join(argv, " ")
}
