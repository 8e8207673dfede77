package executor

import "github.com/sandinak/sudosh/internal/classifier"

// baseEnv builds the hygienic environment from §4.I: start empty,
// restore only the whitelisted variables the supervisor's config names,
// with PATH always forced to the sanitized value regardless of what the
// invoker had set.
func baseEnv(whitelist map[string]string, path string) map[string]string {
	env := make(map[string]string, len(whitelist)+1)
	for k, v := range whitelist {
		env[k] = v
	}
	env["PATH"] = path
	return env
}

// applyHardening neutralizes shell-escape features for pagers and
// editors, per §4.I.
func applyHardening(env map[string]string, class classifier.Class) {
	switch class {
	case classifier.ClassPager:
		env["LESSSECURE"] = "1"
		delete(env, "LESSOPEN")
		delete(env, "LESSCLOSE")
		env["EDITOR"] = "/bin/false"
		env["VISUAL"] = "/bin/false"
		env["SHELL"] = "/bin/false"
	case classifier.ClassSecureEditor:
		env["SHELL"] = "/bin/false"
	}
}

func toSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
