package builder

import (
	"encoding/hex"
	"io"
	"regexp"
	"strings"

	"github.com/hupe1980/agentforge/definition"
)

var (
	invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	underscoreRuns   = regexp.MustCompile(`_+`)
)

// Sanitize maps name to an identifier of at most 63 characters. prefix is
// used when nothing usable is left of name; rnd supplies the random suffix of
// the last-resort name.
func Sanitize(name, prefix string, rnd io.Reader) string {
	p := strings.Trim(prefix, "_")

	s := strings.Trim(invalidNameChars.ReplaceAllString(name, "_"), "_")
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}

	if s == "" {
		rest := strings.Trim(invalidNameChars.ReplaceAllString(name, "_"), "_")
		s = strings.Trim(underscoreRuns.ReplaceAllString(p+"_"+rest, "_"), "_")
	}

	if s == "" {
		s = p + "_default_agent_name"
	}

	s = truncate(s)

	if !definition.IsIdentifier(s) {
		s = truncate(identPrefix(prefix) + "_" + randomHex(rnd, 4))
	}

	return s
}

// identPrefix reduces prefix to something that can start an identifier.
func identPrefix(prefix string) string {
	p := strings.Trim(underscoreRuns.ReplaceAllString(invalidNameChars.ReplaceAllString(prefix, "_"), "_"), "_")
	switch {
	case p == "":
		return "agent"
	case p[0] >= '0' && p[0] <= '9':
		return "_" + p
	default:
		return p
	}
}

func truncate(s string) string {
	if len(s) > definition.MaxNameLength {
		return s[:definition.MaxNameLength]
	}
	return s
}

// randomHex reads n bytes from rnd. A short read leaves zero bytes.
func randomHex(rnd io.Reader, n int) string {
	b := make([]byte, n)
	if rnd != nil {
		_, _ = io.ReadFull(rnd, b)
	}
	return hex.EncodeToString(b)
}
