package render

import (
	"bytes"
)

// Detector decides whether a probed article page needs a headless render
// pass before preprocessing. News sites that server-render articles pass
// the cheap probe; SPA frontends come back as a script shell with no prose
// and get promoted to the browser.
type Detector struct {
	BodyLengthThreshold int
}

// NewDetector creates a detector. threshold is the body size below which a
// script-heavy page is considered a client-rendered shell.
func NewDetector(threshold int) *Detector {
	if threshold == 0 {
		threshold = 2048
	}
	return &Detector{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// ShouldPromote reports whether the probe body looks like an empty shell
// that only a browser can fill in.
func (d *Detector) ShouldPromote(statusCode int, body []byte) bool {
	if statusCode != 200 {
		return false
	}
	if len(body) == 0 {
		return true
	}
	if len(body) < d.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script tags cover at least a quarter
// of the document. Short pages that are mostly bundle loaders carry no
// article text worth preprocessing.
func scriptDensityHigh(body []byte) bool {
	doc := bytes.ToLower(body)
	total := len(doc)
	if total == 0 {
		return false
	}

	openTag := []byte("<script")
	closeTag := []byte("</script>")

	covered := 0
	for pos := 0; pos < total; {
		i := bytes.Index(doc[pos:], openTag)
		if i < 0 {
			break
		}
		start := pos + i

		gt := bytes.IndexByte(doc[start:], '>')
		if gt < 0 {
			// Malformed open tag; count the tail and stop.
			covered += total - start
			break
		}

		end := total
		if j := bytes.Index(doc[start+gt+1:], closeTag); j >= 0 {
			end = start + gt + 1 + j + len(closeTag)
		}
		covered += end - start
		pos = end
	}

	return covered > 0 && covered*100/total >= 25
}
