package internal

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	minCodeLen = 3
	maxCodeLen = 32
)

// reservedCodes collide with API routes mounted next to GET /:code.
var reservedCodes = map[string]struct{}{
	"shorten": {},
	"stats":   {},
	"healthz": {},
}

// NormalizeURL canonicalizes a user supplied destination so the same page
// always maps to the same stored target. A missing scheme defaults to https.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

// NormalizeCode strips surrounding whitespace from a code taken off the wire.
func NormalizeCode(raw string) string {
	return strings.TrimSpace(raw)
}

// ValidateCustomCode checks a caller chosen code.
func ValidateCustomCode(code string) error {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return fmt.Errorf("%w: length must be between %d and %d", ErrInvalidCode, minCodeLen, maxCodeLen)
	}
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: unexpected character %q", ErrInvalidCode, r)
		}
	}
	if _, ok := reservedCodes[strings.ToLower(code)]; ok {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidCode, code)
	}

	return nil
}
