package article

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	rec := ArticleRecord{
		Title:    "Headline",
		MainText: "Body of the article.",
	}
	require.Equal(t, Fingerprint(rec), Fingerprint(rec))
}

func TestFingerprint_IgnoresIncidentalWhitespace(t *testing.T) {
	t.Parallel()

	a := ArticleRecord{Title: "Headline", MainText: "one two  three"}
	b := ArticleRecord{Title: "Headline", MainText: "one\ntwo three "}
	require.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_ChangesWithContent(t *testing.T) {
	t.Parallel()

	a := ArticleRecord{Title: "Headline", MainText: "original body"}
	b := ArticleRecord{Title: "Headline", MainText: "edited body"}
	c := ArticleRecord{Title: "New headline", MainText: "original body"}
	require.NotEqual(t, Fingerprint(a), Fingerprint(b))
	require.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestFingerprint_IndependentOfTimestamps(t *testing.T) {
	t.Parallel()

	a := ArticleRecord{Title: "T", MainText: "body", FetchedAt: time.Unix(100, 0)}
	b := ArticleRecord{Title: "T", MainText: "body", FetchedAt: time.Unix(999, 0)}
	require.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestCountWords(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, CountWords(""))
	require.Equal(t, 3, CountWords("one  two\nthree"))
}
