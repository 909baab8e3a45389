// Package urlutil normalizes the page URLs tasks are registered with.
package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotPageURL is returned for anything other than an absolute http(s) URL.
var ErrNotPageURL = errors.New("url must be an absolute http or https url")

// NormalizePage lowercases the scheme and host and drops a default port. The
// path, query and fragment are kept because single page apps route on them.
func NormalizePage(raw string) (string, error) {
	u, err := parsePage(raw)
	if err != nil {
		return "", err
	}
	u.Host = strings.ToLower(u.Host)
	if port := u.Port(); (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = u.Hostname()
	}
	return u.String(), nil
}

// HostKey returns the lowercased host name of raw, used to serialize audits
// of the same site. Unparsable input is returned trimmed so that it still
// forms its own group.
func HostKey(raw string) string {
	u, err := parsePage(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return strings.ToLower(u.Hostname())
}

func parsePage(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPageURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrNotPageURL
	}
	return u, nil
}
