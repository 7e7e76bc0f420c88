package urlutil

import (
	"net/url"
	"strings"
)

// JoinSegments appends path segments to base, escaping each one so a segment
// can never introduce extra path levels or a query.
func JoinSegments(base string, segments ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	rawPath := strings.TrimSuffix(u.EscapedPath(), "/")
	path := strings.TrimSuffix(u.Path, "/")
	for _, seg := range segments {
		rawPath += "/" + url.PathEscape(seg)
		path += "/" + seg
	}

	u.Path = path
	u.RawPath = rawPath
	return u.String(), nil
}

// WellKnown returns the OIDC discovery URL for an issuer.
func WellKnown(issuer string) (string, error) {
	return JoinSegments(issuer, ".well-known", "openid-configuration")
}
