// Package hostaddr validates and normalizes the server address a user types
// into the client before it is stored or used to build request URLs.
package hostaddr

import (
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	maxHostLen  = 253
	maxLabelLen = 63
)

var (
	schemeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)
	labelRe  = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)
	charsRe  = regexp.MustCompile(`^[a-z0-9.-]+$`)
)

// Validate parses raw as a server address and returns its normalized form.
//
// Accepted shapes are an IPv4 literal, a bracketed IPv6 literal or a DNS name
// with at least two labels, each optionally followed by ":port". A leading
// scheme, trailing slashes and any "user@" prefix are stripped. On any
// violation it returns false and an empty string.
func Validate(raw string) (bool, string) {
	s := strings.Trim(strings.TrimSpace(raw), " \t\r\n<>\"'")
	if loc := schemeRe.FindStringIndex(s); loc != nil {
		s = s[loc[1]:]
	}
	s = strings.TrimRight(s, "/")

	// Userinfo is dropped rather than rejected.
	if at := strings.LastIndexByte(s, '@'); at >= 0 {
		s = s[at+1:]
	}
	if s == "" || strings.ContainsAny(s, "/\\?#") || strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return false, ""
	}

	host, port, ok := splitHostPort(s)
	if !ok {
		return false, ""
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return false, ""
	}

	norm, ok := normalizeHost(host)
	if !ok {
		return false, ""
	}
	if port == 0 {
		return true, norm
	}
	return true, norm + ":" + strconv.Itoa(port)
}

// IsValid reports whether raw passes Validate.
func IsValid(raw string) bool {
	ok, _ := Validate(raw)
	return ok
}

// splitHostPort separates an optional port. A zero port means none was given.
func splitHostPort(s string) (string, int, bool) {
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return "", 0, false
		}
		host := s[:end+1]
		rest := s[end+1:]
		if rest == "" {
			return host, 0, true
		}
		if !strings.HasPrefix(rest, ":") {
			return "", 0, false
		}
		port, ok := parsePort(rest[1:])
		return host, port, ok
	}

	switch strings.Count(s, ":") {
	case 0:
		return s, 0, true
	case 1:
		i := strings.IndexByte(s, ':')
		port, ok := parsePort(s[i+1:])
		return s[:i], port, ok
	default:
		// Bare IPv6 literal; it cannot carry a port without brackets.
		return s, 0, true
	}
}

func parsePort(s string) (int, bool) {
	if s == "" || len(s) > 5 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}

func normalizeHost(host string) (string, bool) {
	literal := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	bracketed := literal != host
	if addr, err := netip.ParseAddr(literal); err == nil {
		if addr.Zone() != "" {
			return "", false
		}
		if addr.Is4() && !bracketed {
			return addr.String(), true
		}
		if addr.Is6() {
			return "[" + addr.String() + "]", true
		}
		return "", false
	}
	if bracketed {
		return "", false
	}
	return normalizeName(host)
}

func normalizeName(host string) (string, bool) {
	h := strings.ToLower(host)
	if len(h) > maxHostLen || !charsRe.MatchString(h) {
		return "", false
	}
	// Dotted digits that failed to parse as IPv4 are a malformed address,
	// not a hostname.
	if strings.Trim(h, "0123456789.") == "" {
		return "", false
	}
	labels := strings.Split(h, ".")
	if len(labels) < 2 {
		return "", false
	}
	for _, l := range labels {
		if l == "" || len(l) > maxLabelLen || !labelRe.MatchString(l) {
			return "", false
		}
	}
	return h, true
}
