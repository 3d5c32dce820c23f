package extract

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/aspl-project/aspl/internal/article"
)

// Recognizer is the fallback named-entity pass. It runs only when the
// primary extractor returns no entities, so precision matters more than
// recall: a small, high-confidence result beats a noisy one.
type Recognizer struct{}

var _ article.EntityRecognizer = (*Recognizer)(nil)

// NewRecognizer builds the fallback recognizer.
func NewRecognizer() *Recognizer {
	return &Recognizer{}
}

var (
	// 2026-03-01, March 1, 2026, 1 March 2026
	isoDateRe  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	longDateRe = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),\s+(\d{4})\b`)
	dayFirstRe = regexp.MustCompile(`\b(\d{1,2})\s+(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{4})\b`)

	// Two or more consecutive capitalized words.
	properNounRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+`)
)

var orgSuffixes = []string{
	"Inc", "Corp", "Corporation", "Ltd", "LLC", "Company", "Group",
	"Ministry", "Department", "Agency", "Commission", "Committee",
	"University", "Institute", "Association", "Bank", "Council",
}

var personTitles = []string{
	"Mr", "Mrs", "Ms", "Dr", "President", "Senator", "Governor",
	"Minister", "Mayor", "Professor", "Chief", "Judge",
}

// Recognize scans the body for dates and high-confidence proper nouns.
func (r *Recognizer) Recognize(text string) article.Entities {
	ents := article.Entities{
		People:        []string{},
		Organizations: []string{},
		Locations:     []string{},
		Dates:         recognizeDates(text),
	}

	seenPeople := make(map[string]bool)
	seenOrgs := make(map[string]bool)

	for _, match := range properNounRe.FindAllString(text, -1) {
		name, titled := stripLeadingTokens(match)
		if name == "" || !strings.Contains(name, " ") {
			continue
		}
		switch {
		case hasOrgSuffix(name):
			if !seenOrgs[name] {
				seenOrgs[name] = true
				ents.Organizations = append(ents.Organizations, name)
			}
		case titled:
			if !seenPeople[name] {
				seenPeople[name] = true
				ents.People = append(ents.People, name)
			}
		}
	}

	sort.Strings(ents.People)
	sort.Strings(ents.Organizations)
	return ents
}

// stripLeadingTokens drops articles and honorifics from the front of a
// match. titled reports whether an honorific was present, which is the
// person signal.
func stripLeadingTokens(match string) (name string, titled bool) {
	tokens := strings.Fields(match)
	for len(tokens) > 0 {
		head := strings.TrimSuffix(tokens[0], ".")
		if head == "The" || head == "A" || head == "An" {
			tokens = tokens[1:]
			continue
		}
		if isPersonTitle(head) {
			titled = true
			tokens = tokens[1:]
			continue
		}
		break
	}
	return strings.Join(tokens, " "), titled
}

func isPersonTitle(token string) bool {
	for _, title := range personTitles {
		if token == title {
			return true
		}
	}
	return false
}

func recognizeDates(text string) []article.DateEntity {
	seen := make(map[string]bool)
	out := []article.DateEntity{}
	add := func(raw string, layout string) {
		if seen[raw] {
			return
		}
		seen[raw] = true
		ent := article.DateEntity{Raw: raw}
		if ts, err := time.Parse(layout, raw); err == nil {
			ent.Normalized = ts.UTC().Format("2006-01-02")
		}
		out = append(out, ent)
	}

	for _, m := range isoDateRe.FindAllString(text, -1) {
		add(m, "2006-01-02")
	}
	for _, m := range longDateRe.FindAllString(text, -1) {
		add(m, "January 2, 2006")
	}
	for _, m := range dayFirstRe.FindAllString(text, -1) {
		add(m, "2 January 2006")
	}
	return out
}

func hasOrgSuffix(name string) bool {
	for _, suffix := range orgSuffixes {
		if strings.HasSuffix(name, " "+suffix) {
			return true
		}
	}
	return false
}
