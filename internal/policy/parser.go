// Package policy implements spec.md §4.B: parsing the local sudoers file
// and its include directory, querying the SSSD-backed directory service,
// merging the two into one ordered rule set, and answering the
// authorization queries the supervisor needs.
package policy

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ParseResult is the outcome of parsing one policy source: the rules it
// contributed plus any non-fatal warnings (§4.B "parse error on a line:
// skip that line, record a non-fatal warning, continue").
type ParseResult struct {
	Rules    []Rule
	Warnings []string
}

// ParseMain parses the main sudoers file, following any #includedir
// directive to also parse the include directory (unless overrideIncludeDir
// is set, in which case that path is used instead). An unreadable main
// file is not an error: spec.md §4.B says to treat it as empty (no
// privileges), so the caller gets a ParseResult with zero rules.
func ParseMain(path, overrideIncludeDir string) ParseResult {
	f, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("sudoers file unreadable, treating policy as empty")
		return ParseResult{}
	}
	defer f.Close()

	var result ParseResult
	var includeDir string
	parseReader(f, path, &result, &includeDir)
	if overrideIncludeDir != "" {
		includeDir = overrideIncludeDir
	}

	if includeDir != "" {
		result.merge(parseIncludeDir(includeDir))
	}
	return result
}

func (r *ParseResult) merge(other ParseResult) {
	r.Rules = append(r.Rules, other.Rules...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// parseIncludeDir scans dir in directory order, skipping filenames that
// contain '.', '~', or start with '#' (§3 Policy store).
func parseIncludeDir(dir string) ParseResult {
	var result ParseResult
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Warnings = append(result.Warnings, "cannot read include directory "+dir+": "+err.Error())
		}
		return result
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if !validIncludeName(name) {
			continue
		}
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			result.Warnings = append(result.Warnings, "cannot read "+path+": "+err.Error())
			continue
		}
		var ignoredIncludeDir string
		parseReader(f, path, &result, &ignoredIncludeDir)
		f.Close()
	}
	return result
}

// validIncludeName rejects names containing '.', '~', or starting with '#'.
func validIncludeName(name string) bool {
	if name == "" {
		return false
	}
	if strings.HasPrefix(name, "#") {
		return false
	}
	if strings.ContainsAny(name, ".~") {
		return false
	}
	return true
}

// parseReader implements the line grammar from §4.B. includeDir is
// populated if a "#includedir <path>" directive is seen.
func parseReader(r io.Reader, provenance string, result *ParseResult, includeDir *string) {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#includedir ") {
			*includeDir = strings.TrimSpace(strings.TrimPrefix(line, "#includedir "))
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue // comment
		}
		if strings.HasPrefix(line, "Defaults") {
			continue // Defaults lines are ignored by this core
		}
		rule, err := parseRuleLine(line)
		if err != nil {
			result.Warnings = append(result.Warnings, provenance+":"+strconv.Itoa(lineNo)+": "+err.Error())
			continue
		}
		rule.Provenance = provenance
		result.Rules = append(result.Rules, rule)
	}
}
