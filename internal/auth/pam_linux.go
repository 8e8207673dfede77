//go:build linux && cgo

package auth

/*
#cgo LDFLAGS: -lpam
#include <security/pam_appl.h>
#include <stdlib.h>
#include <string.h>

static int sudosh_pam_conv(int num_msg, const struct pam_message **msg,
                            struct pam_response **resp, void *appdata_ptr);

static struct pam_conv sudosh_make_conv(void *appdata) {
	struct pam_conv conv;
	conv.conv = sudosh_pam_conv;
	conv.appdata_ptr = appdata;
	return conv;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// PAMVerifier authenticates users via the system PAM stack using the
// service name configured at construction (conventionally "sudo" or a
// dedicated "sudosh" service file under /etc/pam.d).
type PAMVerifier struct {
	Service string
}

// NewPAMVerifier builds a PAMVerifier for the named PAM service.
func NewPAMVerifier(service string) *PAMVerifier {
	if service == "" {
		service = "sudo"
	}
	return &PAMVerifier{Service: service}
}

//export sudosh_pam_conv
func sudosh_pam_conv(numMsg C.int, msg **C.struct_pam_message, resp **C.struct_pam_response, appdata unsafe.Pointer) C.int {
	password := (*pamPassword)(appdata)

	n := int(numMsg)
	respSize := C.size_t(unsafe.Sizeof(C.struct_pam_response{}))
	respArray := (*C.struct_pam_response)(C.calloc(C.size_t(n), respSize))
	responses := unsafe.Slice(respArray, n)
	messages := unsafe.Slice(msg, n)

	for i := 0; i < n; i++ {
		switch messages[i].msg_style {
		case C.PAM_PROMPT_ECHO_OFF, C.PAM_PROMPT_ECHO_ON:
			responses[i].resp = C.strdup(C.CString(password.value))
		default:
			responses[i].resp = nil
		}
		responses[i].resp_retcode = 0
	}
	*resp = respArray
	return C.PAM_SUCCESS
}

// pamPassword is passed through PAM's opaque appdata_ptr so the
// conversation callback can answer the password prompt without any
// global state.
type pamPassword struct {
	value string
}

// Verify runs a full PAM authenticate+acct_mgmt cycle for user with
// password, returning a descriptive error on any non-success PAM code.
func (p *PAMVerifier) Verify(user, password string) error {
	cService := C.CString(p.Service)
	defer C.free(unsafe.Pointer(cService))
	cUser := C.CString(user)
	defer C.free(unsafe.Pointer(cUser))

	pw := &pamPassword{value: password}
	conv := C.sudosh_make_conv(unsafe.Pointer(pw))

	var handle *C.pam_handle_t
	rc := C.pam_start(cService, cUser, &conv, &handle)
	if rc != C.PAM_SUCCESS {
		return fmt.Errorf("pam_start failed: %d", int(rc))
	}
	defer C.pam_end(handle, rc)

	if rc = C.pam_authenticate(handle, 0); rc != C.PAM_SUCCESS {
		return fmt.Errorf("pam_authenticate: %s", C.GoString(C.pam_strerror(handle, rc)))
	}
	if rc = C.pam_acct_mgmt(handle, 0); rc != C.PAM_SUCCESS {
		return fmt.Errorf("pam_acct_mgmt: %s", C.GoString(C.pam_strerror(handle, rc)))
	}
	return nil
}
