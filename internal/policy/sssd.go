package policy

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// SSSDClient speaks the documented local-socket protocol for sudo rules
// (§6 "SSSD protocol"): a request carrying a protocol-version byte and a
// compound TLV payload, with commands/run-as/options returned as TLV
// records. Malformed TLVs are discarded rather than aborting the whole
// response, matching "bounded lengths; malformed TLVs are discarded".
type SSSDClient struct {
	// SocketPath is the local socket the sssd sudo responder listens on.
	SocketPath string
	// Timeout bounds the whole request/response exchange; on expiry the
	// caller falls back to local-only rules (§4.B failure modes).
	Timeout time.Duration
	dial    func(network, address string) (net.Conn, error)
}

const sssdProtocolVersion byte = 1

// tag identifiers for the TLV records in an SSSD sudo rule response.
const (
	tagCommand tag = 1
	tagRunAsUser tag = 2
	tagRunAsGroup tag = 3
	tagOption tag = 4
	tagHost tag = 5
)

type tag byte

// maxTLVLength bounds a single TLV record so a malformed/hostile payload
// can't force an unbounded allocation.
const maxTLVLength = 64 * 1024

// NewSSSDClient builds a client for the default sssd sudo responder socket.
func NewSSSDClient(socketPath string) *SSSDClient {
	return &SSSDClient{
		SocketPath: socketPath,
		Timeout:    2 * time.Second,
		dial:       net.Dial,
	}
}

// FetchRules queries the directory service for sudo rules applying to
// user. Any connection or protocol failure returns an error so the caller
// can fall back to local-only rules; it is not itself a fatal condition.
func (c *SSSDClient) FetchRules(user string) ([]Rule, error) {
	if c.SocketPath == "" {
		return nil, fmt.Errorf("sssd sudo responder socket not configured")
	}
	dial := c.dial
	if dial == nil {
		dial = net.Dial
	}
	conn, err := dial("unix", c.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("sssd socket unreachable: %w", err)
	}
	defer conn.Close()

	if c.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.Timeout))
	}

	req := encodeRequest(user)
	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("sssd write failed: %w", err)
	}

	resp := make([]byte, 256*1024)
	n, err := conn.Read(resp)
	if err != nil {
		return nil, fmt.Errorf("sssd read failed: %w", err)
	}

	return decodeRules(resp[:n], user), nil
}

// encodeRequest builds a version-byte-prefixed, length-prefixed username
// payload.
func encodeRequest(user string) []byte {
	buf := make([]byte, 0, 1+4+len(user))
	buf = append(buf, sssdProtocolVersion)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(user)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, user...)
	return buf
}

// decodeRules parses a compound TLV payload into rules. It tolerates and
// discards malformed records instead of aborting, and groups a run of
// tagCommand records preceded by options/run-as into one Rule (command,
// run-as-user/group, and options are the fields a sudo rule response
// carries per §6).
func decodeRules(payload []byte, user string) []Rule {
	if len(payload) < 1 || payload[0] != sssdProtocolVersion {
		return nil
	}
	body := payload[1:]

	var rules []Rule
	cur := Rule{Principals: []string{user}, Hosts: []string{"ALL"}, Provenance: "sssd"}
	haveAny := false

	for len(body) >= 3 {
		t := tag(body[0])
		length := int(binary.BigEndian.Uint16(body[1:3]))
		body = body[3:]
		if length < 0 || length > maxTLVLength || length > len(body) {
			break // malformed TLV: length runs past the buffer, stop parsing
		}
		value := body[:length]
		body = body[length:]

		switch t {
		case tagCommand:
			cur.Commands = append(cur.Commands, string(value))
			haveAny = true
		case tagRunAsUser:
			cur.RunAs = append(cur.RunAs, string(value))
		case tagRunAsGroup:
			cur.RunAs = append(cur.RunAs, "%"+string(value))
		case tagHost:
			cur.Hosts = []string{string(value)}
		case tagOption:
			if string(value) == "!authenticate" {
				cur.NoPasswd = true
			}
		default:
			// unknown tag kind: discard silently, per §6
		}
	}

	if haveAny {
		rules = append(rules, cur)
	}
	return rules
}
