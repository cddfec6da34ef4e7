// Package extract turns free-form caller utterances into candidate values
// for the identity and order slots. Extraction never fails: a value that
// cannot be found is reported as a no-match, not an error.
package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// spokenConnectors maps spoken email punctuation to symbols. Substitution is
// plain substring replacement, not word-boundary aware; "chat at noon"
// therefore gains a spurious "@". That quirk is load-bearing for transcripts
// from the voice pipeline and is preserved as-is.
var spokenConnectors = []struct{ word, symbol string }{
	{" at ", "@"},
	{" dot ", "."},
	{" underscore ", "_"},
	{" dash ", "-"},
}

// spokenDigits maps number words and common speech-to-text mis-hearings to
// digits. Order matters: replacements run sequentially over the whole text.
var spokenDigits = []struct{ word, digit string }{
	{"zero", "0"},
	{"one", "1"}, {"won", "1"},
	{"two", "2"}, {"to", "2"}, {"too", "2"}, {"tu", "2"},
	{"three", "3"}, {"tree", "3"},
	{"four", "4"}, {"for", "4"}, {"fore", "4"},
	{"photo", "4"}, {"fodo", "4"}, {"fouro", "4"},
	{"five", "5"}, {"fife", "5"},
	{"six", "6"}, {"sex", "6"},
	{"seven", "7"}, {"sevan", "7"},
	{"eight", "8"}, {"ate", "8"}, {"ait", "8"},
	{"nine", "9"}, {"nein", "9"},
}

// Email extracts the first email address embedded in text, after lowering
// the case and substituting spoken connectors. The second return value is
// false when no address is present.
func Email(text string) (string, bool) {
	t := strings.ToLower(text)
	for _, c := range spokenConnectors {
		t = strings.ReplaceAll(t, c.word, c.symbol)
	}

	match := emailPattern.FindString(t)
	if match == "" {
		return "", false
	}
	return match, true
}

// Last4 extracts the last four digits spoken or typed in text. Callers often
// restate or correct digits mid-utterance, so when more than four digits are
// present the most recent four win. Fewer than four digits is a no-match.
func Last4(text string) (string, bool) {
	t := strings.ToLower(text)
	for _, d := range spokenDigits {
		t = strings.ReplaceAll(t, d.word, d.digit)
	}

	var digits []rune
	for _, r := range t {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}

	if len(digits) < 4 {
		return "", false
	}
	return string(digits[len(digits)-4:]), true
}

// Order extracts which of the customer's orders an utterance refers to.
// Only orders one and two are resolvable; extending the table covers more
// without changing the mechanism. Checks run in priority order, so an
// utterance naming both resolves to one.
func Order(text string) (int, bool) {
	t := strings.ToLower(text)
	if strings.Contains(t, "one") || strings.Contains(t, "1") {
		return 1, true
	}
	if strings.Contains(t, "two") || strings.Contains(t, "2") {
		return 2, true
	}
	return 0, false
}
