// Package nss parses the system's name-service-switch configuration, per
// spec.md §3 "NSS configuration": an ordered list of source kinds per
// service (passwd, sudoers).
package nss

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Source is one NSS backend kind.
type Source string

const (
	SourceFiles   Source = "files"
	SourceSSSD    Source = "sss"
	SourceLDAP    Source = "ldap"
	SourceUnknown Source = "unknown"
)

// SourceList is the ordered backend list for one service.
type SourceList []Source

// Config is the parsed nsswitch.conf: an ordered source list per service.
type Config struct {
	services map[string]SourceList
}

// DefaultPath is the conventional location of nsswitch.conf on Linux.
const DefaultPath = "/etc/nsswitch.conf"

// Service returns the configured source order for a service name
// ("passwd", "sudoers", ...), defaulting to files-only when the service
// has no entry.
func (c *Config) Service(name string) SourceList {
	if c == nil {
		return SourceList{SourceFiles}
	}
	if list, ok := c.services[name]; ok && len(list) > 0 {
		return list
	}
	return SourceList{SourceFiles}
}

// ParseFile reads and parses an nsswitch.conf-formatted file.
func ParseFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads nsswitch.conf syntax from r: "<service>: <source> [<source> ...]",
// comments starting with '#', blank lines ignored, and bracketed criteria
// (e.g. "[NOTFOUND=return]") dropped since the supervisor only needs the
// backend order, not the continuation policy.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{services: map[string]SourceList{}}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		service := strings.TrimSpace(line[:colon])
		rest := strings.Fields(line[colon+1:])
		var sources SourceList
		for _, tok := range rest {
			if strings.HasPrefix(tok, "[") {
				continue // criteria like [NOTFOUND=return], not a source
			}
			sources = append(sources, normalizeSource(tok))
		}
		if service != "" && len(sources) > 0 {
			cfg.services[service] = sources
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalizeSource(tok string) Source {
	switch strings.ToLower(tok) {
	case "files":
		return SourceFiles
	case "sss", "sssd":
		return SourceSSSD
	case "ldap":
		return SourceLDAP
	default:
		return SourceUnknown
	}
}
