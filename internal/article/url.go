package article

import (
	"fmt"
	"net/url"
	"strings"
)

// Tracking parameters stripped during normalization. Two input strings that
// differ only in these must map to the same cache key.
var trackingParams = map[string]bool{
	"fbclid":   true,
	"gclid":    true,
	"igshid":   true,
	"mc_cid":   true,
	"mc_eid":   true,
	"msclkid":  true,
	"ref":      true,
	"ref_src":  true,
	"spm":      true,
	"yclid":    true,
	"_hsenc":   true,
	"_hsmi":    true,
	"wt_mc":    true,
	"s_cid":    true,
	"mkt_tok":  true,
	"trk":      true,
	"vero_id":  true,
	"oly_enc_id": true,
}

// NormalizeURL standardizes a URL so that logical duplicates share one cache
// key. It lowercases the scheme and host, removes default ports and
// fragments, strips tracking query parameters, and sorts the remainder.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if trackingParams[strings.ToLower(key)] || strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	// Trailing slash on a bare path is not meaningful.
	if u.Path == "/" && u.RawQuery == "" {
		u.Path = ""
	}

	return u.String(), nil
}
