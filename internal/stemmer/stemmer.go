// ═══════════════════════════════════════════════════════════════════════════════
// STEMMING OVERVIEW
// ═══════════════════════════════════════════════════════════════════════════════
// Stemming reduces an inflected Ukrainian word to a stable key so that "донецького"
// and "донецькому" collapse to the same posting. The rules here are deliberately
// narrow and rule-based rather than statistical:
//
//  1. Strip a handful of fixed noun/adjective suffixes (-ець/-ця/-цю, -ого, -ому).
//  2. Peel trailing vowels and "й" one rune at a time.
//  3. Collapse "федір"/"федора"/"федору" (a remainder starting "фед" and
//     ending "ір", "ор" or "і") to "фед".
//
// Hyphenated tokens ("донецько-луганський") are split on '-', each side is
// stemmed independently, and the pieces are rejoined with '-'.
// ═══════════════════════════════════════════════════════════════════════════════

package stemmer

import (
	"regexp"
	"strings"
)

const ukrainianVowels = "аеєиіїоуюяь"

// wordPattern matches the unicode letter/number/apostrophe run used to split
// paragraph text into candidate words, at both index time and query time.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}']+`)

// Stem reduces a single lowercased (or not) token to its stem key. It is a
// pure function: the same token always yields the same stem, and stemming a
// stem is a no-op (Stem(Stem(w)) == Stem(w)).
func Stem(token string) string {
	token = strings.ToLower(token)

	if strings.Contains(token, "-") {
		parts := strings.Split(token, "-")
		for i, part := range parts {
			parts[i] = stemPart(part)
		}
		return strings.Join(parts, "-")
	}

	return stemPart(token)
}

func stemPart(word string) string {
	result := word

	switch {
	case strings.HasSuffix(result, "ець"):
		result = result[:len(result)-len("ець")]
	case strings.HasSuffix(result, "ця"):
		result = result[:len(result)-len("ця")]
	case strings.HasSuffix(result, "цю"):
		result = result[:len(result)-len("цю")]
	}

	if strings.HasSuffix(result, "ого") {
		result = result[:len(result)-len("ого")]
	}
	if strings.HasSuffix(result, "ому") {
		result = result[:len(result)-len("ому")]
	}

	for result != "" {
		last, size := lastRune(result)
		if strings.ContainsRune(ukrainianVowels, last) || last == 'й' {
			result = result[:len(result)-size]
			continue
		}
		break
	}

	// Special case: "федір"/"федора"/"федору" (forms of the given name
	// "Федір") collapse to "фед". Forms whose remainder ends otherwise, such
	// as "федором", are not collapsed.
	if strings.HasPrefix(result, "фед") &&
		(strings.HasSuffix(result, "ір") || strings.HasSuffix(result, "ор") || strings.HasSuffix(result, "і")) {
		result = "фед"
	}

	return result
}

func lastRune(s string) (rune, int) {
	for i := len(s) - 1; i >= 0; i-- {
		if utf8RuneStart(s[i]) {
			r := []rune(s[i:])
			return r[0], len(s) - i
		}
	}
	return 0, 0
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// ExtractWords splits text into candidate words using the Unicode
// letter/number/apostrophe class, strips apostrophes, stems each word, and
// discards stems shorter than two runes (invariant I6). The same function
// drives both indexing and query-time tokenization, per spec.
func ExtractWords(text string) []string {
	matches := wordPattern.FindAllString(text, -1)
	words := make([]string, 0, len(matches))

	for _, m := range matches {
		cleaned := strings.ReplaceAll(m, "'", "")
		if cleaned == "" {
			continue
		}
		stem := Stem(cleaned)
		if runeCount(stem) < 2 {
			continue
		}
		words = append(words, stem)
	}

	return words
}

func runeCount(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
