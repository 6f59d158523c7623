package news

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrBadURL is returned for links that are not absolute http(s) URLs.
var ErrBadURL = errors.New("unresolvable url")

var (
	nonWord    = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	trackingRe = regexp.MustCompile(`^(utm_.*|fbclid|gclid|dclid|msclkid|yclid|mc_cid|mc_eid|igshid|_hsenc|_hsmi|ref|ref_src|spm)$`)
)

// NormalizeURL returns the canonical form of a link used for dedup and ids.
// Scheme and host are lowercased, default ports, fragments, tracking
// parameters and trailing slashes are removed, and the remaining query
// parameters are sorted.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrBadURL
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Hostname() == "" {
		return "", ErrBadURL
	}
	u.Scheme = scheme

	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for key := range q {
		if trackingRe.MatchString(strings.ToLower(key)) {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.ForceQuery = false

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), nil
}

// NormalizeTitle lowercases a title and collapses punctuation and whitespace.
func NormalizeTitle(title string) string {
	return strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(title), " "))
}

// MakeID derives the stable item id from a normalized URL.
func MakeID(normalizedURL string) string {
	sum := sha1.Sum([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])
}

// Domain returns the host of a URL without a leading "www.".
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
