package classifier

// Class is one of the ten command categories from spec.md §4.E.
type Class int

const (
	ClassUnknown Class = iota
	ClassBuiltin
	ClassSafeReadOnly
	ClassTextProcessing
	ClassSecureEditor
	ClassNonSecureEditor
	ClassShell
	ClassPrivilegeEscalation
	ClassConditionallyBlocked
	ClassDangerous
	ClassPager
)

func (c Class) String() string {
	switch c {
	case ClassBuiltin:
		return "built-in"
	case ClassSafeReadOnly:
		return "safe-read-only"
	case ClassTextProcessing:
		return "text-processing"
	case ClassSecureEditor:
		return "secure-editor"
	case ClassNonSecureEditor:
		return "non-secure-editor"
	case ClassShell:
		return "shell"
	case ClassPrivilegeEscalation:
		return "privilege-escalation"
	case ClassConditionallyBlocked:
		return "conditionally-blocked"
	case ClassDangerous:
		return "dangerous"
	case ClassPager:
		return "pager"
	default:
		return "unknown"
	}
}

// Capability is a bitset describing what a classified stage touches, as
// a coarse read/write/admin summary. It never participates in
// authorization: §4.G's class gate and the policy store decide
// allow/deny. It is carried on classified and planned stages only; no
// audit event records it.
type Capability uint32

const (
	CapabilityRead Capability = 1 << iota
	CapabilityWrite
	CapabilityAdmin
)

func (c Capability) Has(flag Capability) bool { return c&flag == flag }

var builtins = map[string]struct{}{
	"cd": {}, "pwd": {}, "pushd": {}, "popd": {}, "dirs": {},
	"alias": {}, "unalias": {}, "export": {}, "unset": {}, "env": {},
	"printenv": {}, "which": {}, "type": {}, "help": {}, "history": {},
	"commands": {}, "rules": {}, "exit": {}, "quit": {},
}

var safeReadOnly = map[string]struct{}{
	"ls": {}, "id": {}, "whoami": {}, "date": {}, "uptime": {}, "w": {},
	"who": {}, "last": {}, "echo": {}, "hostname": {}, "pwd": {},
}

var textProcessing = map[string]struct{}{
	"grep": {}, "egrep": {}, "fgrep": {}, "sed": {}, "awk": {}, "gawk": {},
	"cut": {}, "sort": {}, "uniq": {}, "head": {}, "tail": {}, "wc": {},
	"cat": {}, "tr": {}, "tac": {}, "rev": {}, "nl": {},
}

var secureEditors = map[string]struct{}{
	"vi": {}, "vim": {}, "view": {}, "nano": {}, "pico": {},
}

var nonSecureEditors = map[string]struct{}{
	"nvim": {}, "emacs": {}, "joe": {}, "mcedit": {}, "ed": {}, "ex": {},
}

var shells = map[string]struct{}{
	"sh": {}, "bash": {}, "zsh": {}, "ksh": {}, "csh": {}, "tcsh": {},
	"fish": {}, "dash": {},
}

var privilegeEscalation = map[string]struct{}{
	"su": {}, "sudo": {}, "pkexec": {},
}

var pagers = map[string]struct{}{
	"less": {}, "more": {},
}

// conditionallyBlocked groups system control, disk ops, network
// security, communication, and user administration commands: allowed
// only when the invoker's policy covers this specific command or "ALL".
var conditionallyBlocked = map[string]struct{}{
	"systemctl": {}, "service": {}, "reboot": {}, "shutdown": {}, "halt": {},
	"mount": {}, "umount": {}, "fdisk": {}, "parted": {}, "mkfs": {},
	"iptables": {}, "nft": {}, "firewall-cmd": {}, "ufw": {},
	"mail": {}, "sendmail": {}, "wall": {},
	"useradd": {}, "userdel": {}, "usermod": {}, "groupadd": {}, "groupdel": {}, "passwd": {},
}

// dangerous commands get the same conditional authorization plus the
// recursive/force flag scan and confirmation prompt from §4.G.
var dangerous = map[string]struct{}{
	"rm": {}, "mv": {}, "cp": {}, "dd": {}, "chmod": {}, "chown": {}, "chgrp": {}, "ln": {},
}

// capabilityByClass is the audit-only capability each class implies by
// default; individual commands can be refined further by refineClass.
var capabilityByClass = map[Class]Capability{
	ClassSafeReadOnly:         CapabilityRead,
	ClassTextProcessing:       CapabilityRead,
	ClassSecureEditor:         CapabilityRead | CapabilityWrite,
	ClassNonSecureEditor:      CapabilityRead | CapabilityWrite,
	ClassConditionallyBlocked: CapabilityAdmin,
	ClassDangerous:            CapabilityWrite | CapabilityAdmin,
	ClassPager:                CapabilityRead,
}

// pipelineSafeClasses is the whitelist from §4.E/§4.G: stages in these
// classes may appear anywhere in a multi-stage pipeline. Dangerous and
// editor stages fail a multi-stage plan outright.
var pipelineSafeClasses = map[Class]struct{}{
	ClassSafeReadOnly:   {},
	ClassTextProcessing: {},
	ClassPager:          {},
}

// PipelineSafe reports whether a stage of this class may appear in a
// multi-stage pipeline.
func (c Class) PipelineSafe() bool {
	_, ok := pipelineSafeClasses[c]
	return ok
}

// classify looks up name (the stage's first word, already basename'd)
// against the class tables.
func classify(name string) Class {
	switch {
	case in(builtins, name):
		return ClassBuiltin
	case in(safeReadOnly, name):
		return ClassSafeReadOnly
	case in(textProcessing, name):
		return ClassTextProcessing
	case in(secureEditors, name):
		return ClassSecureEditor
	case in(nonSecureEditors, name):
		return ClassNonSecureEditor
	case in(shells, name):
		return ClassShell
	case in(privilegeEscalation, name):
		return ClassPrivilegeEscalation
	case in(pagers, name):
		return ClassPager
	case in(dangerous, name):
		return ClassDangerous
	case in(conditionallyBlocked, name):
		return ClassConditionallyBlocked
	default:
		return ClassUnknown
	}
}

func in(set map[string]struct{}, name string) bool {
	_, ok := set[name]
	return ok
}
