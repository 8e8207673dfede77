// Package identity resolves the invoking user's real identity and any
// target identity requested with -u, per spec.md §4.A. It never guesses:
// a lookup failure is reported as an identity error, not papered over.
package identity

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/sandinak/sudosh/internal/errs"
	"github.com/sandinak/sudosh/internal/nss"
)

// Identity is the invariant record for either the invoker or a target user:
// numeric ids observed before any privilege drop, username, home directory,
// login shell, supplementary group ids, and hostname.
type Identity struct {
	UID      uint32
	GID      uint32
	Groups   []uint32
	Username string
	Home     string
	Shell    string
	Hostname string
}

// Seams for testing without requiring a setuid binary or real root.
var (
	sysGetuid  = os.Getuid
	sysGeteuid = os.Geteuid
	sysGetgid  = os.Getgid
	sysHostname = os.Hostname
)

// Resolver resolves passwd entries through the configured NSS "passwd"
// source order (files, sss, ldap, ...).
type Resolver struct {
	Sources nss.SourceList
}

// NewResolver builds a Resolver from the system's nsswitch.conf, falling
// back to the traditional "files" source if nsswitch.conf cannot be read.
func NewResolver() *Resolver {
	cfg, err := nss.ParseFile(nss.DefaultPath)
	if err != nil {
		return &Resolver{Sources: nss.SourceList{nss.SourceFiles}}
	}
	return &Resolver{Sources: cfg.Service("passwd")}
}

// ResolveInvoker determines the real identity of the process that started
// us, per §4.A: read the real and effective uid through sysGetuid and
// sysGeteuid (os.Getuid and os.Geteuid, i.e. getuid(2)/geteuid(2); the
// saved uid is not read), confirm the effective id is 0 (the binary is
// expected to be setuid-root), then look up the passwd entry for the real
// uid.
func (r *Resolver) ResolveInvoker() (*Identity, error) {
	real := sysGetuid()
	eff := sysGeteuid()
	if eff != 0 {
		return nil, errs.New(errs.KindIdentity, "effective uid is not root; binary must be installed setuid-root")
	}

	pw, err := r.lookupUID(uint32(real))
	if err != nil {
		return nil, errs.Wrap(errs.KindIdentity, "unknown user", err)
	}

	host, herr := sysHostname()
	if herr != nil {
		host = "localhost"
	}

	return &Identity{
		UID:      pw.UID,
		GID:      pw.GID,
		Groups:   groupIDsOf(pw.Username),
		Username: pw.Username,
		Home:     pw.Home,
		Shell:    pw.Shell,
		Hostname: host,
	}, nil
}

// ResolveTarget looks up the user requested via -u (defaulting to root
// when name is empty), validating that the account exists.
func (r *Resolver) ResolveTarget(name string) (*Identity, error) {
	if name == "" {
		name = "root"
	}
	pw, err := r.lookupName(name)
	if err != nil {
		return nil, errs.Wrap(errs.KindIdentity, fmt.Sprintf("unknown target user %q", name), err)
	}
	host, herr := sysHostname()
	if herr != nil {
		host = "localhost"
	}
	return &Identity{
		UID:      pw.UID,
		GID:      pw.GID,
		Groups:   groupIDsOf(pw.Username),
		Username: pw.Username,
		Home:     pw.Home,
		Shell:    pw.Shell,
		Hostname: host,
	}, nil
}

// groupIDsOf returns username's numeric supplementary group ids, for
// Credential.Groups (§4.I's initgroups step). A lookup failure yields an
// empty set rather than an error: the executor then falls back to the
// primary gid alone, the same degrade-gracefully posture as the rest of
// the identity package.
func groupIDsOf(username string) []uint32 {
	u, err := user.Lookup(username)
	if err != nil {
		return nil
	}
	gids, err := u.GroupIds()
	if err != nil {
		return nil
	}
	out := make([]uint32, 0, len(gids))
	for _, gid := range gids {
		var n uint64
		if _, err := fmt.Sscanf(gid, "%d", &n); err == nil {
			out = append(out, uint32(n))
		}
	}
	return out
}

type passwdEntry struct {
	UID      uint32
	GID      uint32
	Username string
	Home     string
	Shell    string
}

// lookupUID walks the configured NSS source order, files first unless
// configured otherwise, taking the first source to return a non-empty
// result.
func (r *Resolver) lookupUID(uid uint32) (*passwdEntry, error) {
	var lastErr error
	for _, src := range r.Sources {
		pw, err := lookupUIDFromSource(src, uid)
		if err != nil {
			lastErr = err
			continue
		}
		if pw != nil {
			return pw, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("uid %d not found in any configured passwd source", uid)
}

func (r *Resolver) lookupName(name string) (*passwdEntry, error) {
	var lastErr error
	for _, src := range r.Sources {
		pw, err := lookupNameFromSource(src, name)
		if err != nil {
			lastErr = err
			continue
		}
		if pw != nil {
			return pw, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("user %q not found in any configured passwd source", name)
}

// lookupUIDFromSource dispatches to the "files" backend (the only backend
// implemented with certainty here; "sss"/"ldap" fall back to the same
// system call, since Go's os/user already consults nsswitch via cgo or the
// pure-Go fallback depending on build tags — this mirrors how the real
// binary treats any non-files source as "ask the system", per §4.A).
func lookupUIDFromSource(src nss.Source, uid uint32) (*passwdEntry, error) {
	switch src {
	case nss.SourceFiles, nss.SourceSSSD, nss.SourceLDAP:
		u, err := user.LookupId(fmt.Sprint(uid))
		if err != nil {
			return nil, nil // not found via this source; try the next
		}
		return toEntry(u)
	default:
		return nil, nil
	}
}

func lookupNameFromSource(src nss.Source, name string) (*passwdEntry, error) {
	switch src {
	case nss.SourceFiles, nss.SourceSSSD, nss.SourceLDAP:
		u, err := user.Lookup(name)
		if err != nil {
			return nil, nil
		}
		return toEntry(u)
	default:
		return nil, nil
	}
}

func toEntry(u *user.User) (*passwdEntry, error) {
	var uid, gid uint64
	if _, err := fmt.Sscanf(u.Uid, "%d", &uid); err != nil {
		return nil, err
	}
	if _, err := fmt.Sscanf(u.Gid, "%d", &gid); err != nil {
		return nil, err
	}
	return &passwdEntry{
		UID:      uint32(uid),
		GID:      uint32(gid),
		Username: u.Username,
		Home:     u.HomeDir,
		Shell:    loginShell(u.Username, u.Uid),
	}, nil
}

// passwdFilePath is the "files" NSS source for login shells; os/user
// doesn't expose the shell field, so it's read directly from the same
// source internal/nss already names.
var passwdFilePath = "/etc/passwd"

// loginShell looks up username's (or, failing that, uid's) login shell
// from /etc/passwd's 7th colon-separated field, defaulting to /bin/sh
// when the account has no entry there (e.g. it came from sss/ldap).
func loginShell(username, uid string) string {
	f, err := os.Open(passwdFilePath)
	if err != nil {
		return "/bin/sh"
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) < 7 {
			continue
		}
		if fields[0] == username || fields[2] == uid {
			if fields[6] != "" {
				return fields[6]
			}
			break
		}
	}
	return "/bin/sh"
}
