package outline

import "unicode"

// Tags extracts the #tags from s, in order of first appearance,
// without the marker. A tag starts at a word boundary with '#'
// followed by a letter, and runs over letters, digits, '-' and '_'.
// Duplicates are dropped.
func Tags(s string) []string {
	return extract(s, '#')
}

// Mentions extracts the @mentions from s under the same rules as
// [Tags].
func Mentions(s string) []string {
	return extract(s, '@')
}

func extract(s string, marker rune) []string {
	var (
		out  []string
		seen map[string]bool
	)

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] != marker {
			continue
		}
		// Word boundary: the marker must not be glued to a word.
		if i > 0 && isWord(runes[i-1]) {
			continue
		}
		// The body must open with a letter.
		if i+1 >= len(runes) || !unicode.IsLetter(runes[i+1]) {
			continue
		}

		j := i + 1
		for j < len(runes) && isWord(runes[j]) {
			j++
		}

		tag := string(runes[i+1 : j])
		if seen == nil {
			seen = make(map[string]bool)
		}
		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
		i = j - 1
	}

	return out
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_'
}
