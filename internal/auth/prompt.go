package auth

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

// readPassword is a seam over term.ReadPassword so tests can supply a
// canned response without a real terminal attached.
var readPassword = term.ReadPassword

var stderr = os.Stderr

// PromptPassword writes the standard "[sudosh] password for <user>: "
// prompt to stderr and reads a line with echo disabled.
func PromptPassword(user string) (string, error) {
	fmt.Fprintf(stderr, "[sudosh] password for %s: ", user)
	b, err := readPassword(int(syscall.Stdin))
	fmt.Fprintln(stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
