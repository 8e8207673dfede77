//go:build !linux || !cgo

package auth

import "fmt"

// PAMVerifier is unavailable on this build (PAM requires linux+cgo); its
// methods always fail so a non-Linux build still links, for development
// and cross-compiled tooling that never runs the real authenticator.
type PAMVerifier struct {
	Service string
}

// NewPAMVerifier returns a verifier that always fails Verify.
func NewPAMVerifier(service string) *PAMVerifier {
	if service == "" {
		service = "sudo"
	}
	return &PAMVerifier{Service: service}
}

// Verify always fails: PAM is not available on this build.
func (p *PAMVerifier) Verify(user, password string) error {
	return fmt.Errorf("pam authentication unavailable on this platform")
}
