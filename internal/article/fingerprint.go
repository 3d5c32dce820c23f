package article

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes a deterministic digest over the meaningful content of
// a record: title plus whitespace-normalized main text. Incidental byte
// differences (ad rotation, boilerplate timestamps) do not change it, and
// recomputation over a cached record always reproduces the stored value.
func Fingerprint(rec ArticleRecord) string {
	content := rec.Title + "|" + normalizeText(rec.MainText)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// normalizeText collapses runs of whitespace to single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CountWords returns the number of whitespace-separated tokens in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
