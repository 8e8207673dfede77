package policy

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Store is the merged, queryable policy: local sudoers rules followed by
// directory-service rules, per §4.B. It is safe for concurrent reads; the
// watcher goroutine is the only writer.
type Store struct {
	mu    sync.RWMutex
	rules []Rule

	sudoersPath string
	includeDir  string
	sssd        *SSSDClient
	host        string

	watcher *fsnotify.Watcher
}

// Options configures a Store.
type Options struct {
	SudoersPath string
	IncludeDir  string // override; empty means "derive from #includedir"
	SSSD        *SSSDClient
	Host        string
}

// NewStore parses the local sudoers policy and starts an fsnotify watch on
// it and its include directory so later edits are picked up without a
// restart (SPEC_FULL.md's policy hot-reload supplement). SSSD rules are
// fetched per-query, not cached here, since they are keyed by user.
func NewStore(opt Options) *Store {
	s := &Store{
		sudoersPath: opt.SudoersPath,
		includeDir:  opt.IncludeDir,
		sssd:        opt.SSSD,
		host:        opt.Host,
	}
	s.reload()
	s.startWatch()
	return s
}

func (s *Store) reload() {
	result := ParseMain(s.sudoersPath, s.includeDir)
	for _, w := range result.Warnings {
		log.Warn().Str("component", "policy").Msg(w)
	}
	s.mu.Lock()
	s.rules = result.Rules
	s.mu.Unlock()
}

// startWatch installs an fsnotify watch on the sudoers file and (if
// known) its include directory. Watch setup failures are logged and
// otherwise ignored: the store still works, just without hot-reload,
// matching the "degrade gracefully" rule for non-critical resources.
func (s *Store) startWatch() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("policy hot-reload watcher unavailable")
		return
	}
	if err := w.Add(s.sudoersPath); err != nil {
		log.Warn().Err(err).Str("path", s.sudoersPath).Msg("cannot watch sudoers file")
	}
	if s.includeDir != "" {
		if err := w.Add(s.includeDir); err != nil {
			log.Warn().Err(err).Str("path", s.includeDir).Msg("cannot watch sudoers include directory")
		}
	}
	s.watcher = w
	go s.watchLoop()
}

func (s *Store) watchLoop() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				log.Info().Str("path", ev.Name).Msg("sudoers policy changed, reloading")
				s.reload()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("policy watcher error")
		}
	}
}

// Close stops the hot-reload watch.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// allRulesFor returns local rules plus directory-service rules for user,
// fetched in parallel via errgroup per §4.B point 2. A directory-service
// timeout or error falls back to local-only rules.
func (s *Store) allRulesFor(user string) []Rule {
	s.mu.RLock()
	local := make([]Rule, len(s.rules))
	copy(local, s.rules)
	s.mu.RUnlock()

	if s.sssd == nil {
		return local
	}

	var directory []Rule
	var g errgroup.Group
	g.Go(func() error {
		rules, err := s.sssd.FetchRules(user)
		if err != nil {
			log.Warn().Err(err).Msg("sssd sudo rule fetch failed, falling back to local-only rules")
			return nil
		}
		directory = rules
		return nil
	})
	_ = g.Wait() // FetchRules never returns an error through g; it self-recovers

	return append(local, directory...)
}

func groupsOf(user string) map[string]struct{} {
	return lookupGroupsFunc(user)
}

// lookupGroupsFunc is a seam so tests can supply fixed group membership
// without depending on the real system group database.
var lookupGroupsFunc = systemGroupsOf
