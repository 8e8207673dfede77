// Package config loads the supervisor's own tunables. It does not own the
// sudoers policy (internal/policy reads /etc/sudoers directly) — only the
// knobs spec.md §9 Open Question 4 calls out as "policy, not code":
// the cache/lock timeouts, the command and pipeline size limits, and the
// environment passthrough whitelist.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/sandinak/sudosh/internal/identity"
)

// Config holds every environment-tunable default from spec.md §3/§4/§6.
type Config struct {
	// SudoersPath is the main policy file. Default /etc/sudoers.
	SudoersPath string
	// SudoersIncludeDir overrides the directory scanned for #includedir.
	// Empty means "derive it from the #includedir directive in the main file".
	SudoersIncludeDir string

	// RunDir is the root-owned directory under which the auth cache and
	// lock directory live. Default /var/run/sudosh.
	RunDir string

	// AuthCacheTimeout is how long a successful authentication is honored
	// without re-prompting. Default 900s.
	AuthCacheTimeout time.Duration

	// LockTimeout is how long a file lock is held before being considered
	// stale. Default 1800s.
	LockTimeout time.Duration

	// InactivityTimeout exits the interactive loop after this much idle
	// wall-clock time. Default 300s.
	InactivityTimeout time.Duration

	// MaxCommandLength rejects command strings longer than this. Default 4096.
	MaxCommandLength int

	// MaxPipelineStages bounds pipeline length. Default 8.
	MaxPipelineStages int

	// AutomationThreshold is the confidence score (0-100) at or above which
	// a session is classified as automation. Default 70.
	AutomationThreshold int

	// PATHWhitelist is the sanitized PATH handed to children.
	PATHWhitelist string

	// EnvPassthrough is the set of environment variable names preserved
	// (beyond PATH) when building a child's environment.
	EnvPassthrough []string

	// ProgramTag is the syslog program identifier.
	ProgramTag string
}

// Default returns the compiled-in defaults from spec.md §3/§4/§6.
func Default() *Config {
	return &Config{
		SudoersPath:         "/etc/sudoers",
		RunDir:              "/var/run/sudosh",
		AuthCacheTimeout:    900 * time.Second,
		LockTimeout:         1800 * time.Second,
		InactivityTimeout:   300 * time.Second,
		MaxCommandLength:    4096,
		MaxPipelineStages:   8,
		AutomationThreshold: 70,
		PATHWhitelist:       "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		EnvPassthrough:      []string{"HOME", "USER", "LOGNAME", "TERM", "LANG", "MAIL"},
		ProgramTag:          "sudosh",
	}
}

// Load starts from Default, applies an optional /etc/sudosh/env drop-in
// (read with godotenv, mirroring the teacher's .env support), and then
// applies process environment overrides. Missing files are not an error;
// a present-but-unreadable file is logged and ignored, matching the
// "degrade gracefully for non-critical resources" rule from §7.
func Load() *Config {
	cfg := Default()

	envFile := "/etc/sudosh/env"
	if vars, err := godotenv.Read(envFile); err == nil {
		applyMap(cfg, vars)
	} else if !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", envFile).Msg("failed to read sudosh env drop-in, using defaults")
	}

	applyMap(cfg, processEnvMap())
	return cfg
}

func processEnvMap() map[string]string {
	m := map[string]string{}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.HasPrefix(parts[0], "SUDOSH_") {
			m[parts[0]] = parts[1]
		}
	}
	return m
}

func applyMap(cfg *Config, vars map[string]string) {
	if v, ok := vars["SUDOSH_SUDOERS_PATH"]; ok && v != "" {
		cfg.SudoersPath = v
	}
	if v, ok := vars["SUDOSH_SUDOERS_INCLUDE_DIR"]; ok && v != "" {
		cfg.SudoersIncludeDir = v
	}
	if v, ok := vars["SUDOSH_RUN_DIR"]; ok && v != "" {
		cfg.RunDir = v
	}
	if v, ok := vars["SUDOSH_AUTH_CACHE_TIMEOUT_SECONDS"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AuthCacheTimeout = time.Duration(n) * time.Second
		}
	}
	if v, ok := vars["SUDOSH_LOCK_TIMEOUT_SECONDS"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LockTimeout = time.Duration(n) * time.Second
		}
	}
	if v, ok := vars["SUDOSH_INACTIVITY_TIMEOUT_SECONDS"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.InactivityTimeout = time.Duration(n) * time.Second
		}
	}
	if v, ok := vars["SUDOSH_MAX_COMMAND_LENGTH"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxCommandLength = n
		}
	}
	if v, ok := vars["SUDOSH_MAX_PIPELINE_STAGES"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxPipelineStages = n
		}
	}
	if v, ok := vars["SUDOSH_AUTOMATION_THRESHOLD"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 100 {
			cfg.AutomationThreshold = n
		}
	}
	if v, ok := vars["SUDOSH_PATH"]; ok && v != "" {
		cfg.PATHWhitelist = v
	}
	if v, ok := vars["SUDOSH_ENV_PASSTHROUGH"]; ok && v != "" {
		cfg.EnvPassthrough = strings.Split(v, ",")
	}
}

// CacheDir is the root-owned, mode-0700 directory holding per-(user,tty)
// authentication cache entries.
func (c *Config) CacheDir() string { return filepath.Join(c.RunDir, "auth_cache") }

// LockDir is the root-owned, mode-0755 directory holding per-path file locks.
func (c *Config) LockDir() string { return filepath.Join(c.RunDir, "locks") }

// EnvPassthroughMap builds the whitelist of environment variables handed to
// a child process: the configured passthrough names, read from the
// invoker's own environment (not the target's), so a child never inherits
// a variable the invoker never had.
func (c *Config) EnvPassthroughMap(invoker *identity.Identity) map[string]string {
	out := make(map[string]string, len(c.EnvPassthrough))
	for _, name := range c.EnvPassthrough {
		if v, ok := os.LookupEnv(name); ok {
			out[name] = v
		}
	}
	if invoker != nil {
		out["SUDOSH_USER"] = invoker.Username
	}
	return out
}
