// Package reader decodes library documents into renderable units and
// readable text, one adapter per format.
package reader

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// MinSentenceLen is the shortest fragment, in runes, spoken on its own.
// Shorter fragments other than the last are merged into the sentence that
// follows.
const MinSentenceLen = 6

// ParseText splits text into words.
func ParseText(text string) []string {
	return strings.Fields(text)
}

// CountWords returns the number of whitespace separated words in text.
func CountWords(text string) int {
	return len(ParseText(text))
}

// Split turns text into an ordered list of sentences. Whitespace is
// normalized to single spaces, so splitting the rejoined output yields
// the same sequence again.
func Split(text string) []string {
	words := ParseText(text)
	starts := sentenceStarts(words)
	out := make([]string, 0, len(starts))
	for i, s := range starts {
		end := len(words)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		out = append(out, strings.Join(words[s:end], " "))
	}
	return out
}

// FindSentenceStarts returns indices of words that start sentences,
// before short fragments are merged.
func FindSentenceStarts(words []string) []int {
	starts := []int{0}
	for i, word := range words {
		if endsSentence(word) && i+1 < len(words) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// sentenceStarts returns the first word index of every merged sentence.
func sentenceStarts(words []string) []int {
	if len(words) == 0 {
		return nil
	}
	raw := FindSentenceStarts(words)
	var (
		out   []int
		start = -1
		runes int
	)
	for i, s := range raw {
		end := len(words)
		if i+1 < len(raw) {
			end = raw[i+1]
		}
		if start < 0 {
			start, runes = s, -1
		}
		for _, w := range words[s:end] {
			runes += utf8.RuneCountInString(w) + 1
		}
		if end < len(words) && runes < MinSentenceLen {
			continue
		}
		out = append(out, start)
		start = -1
	}
	return out
}

// SentenceOfWord maps a word index of text to the index of the sentence
// Split places it in.
func SentenceOfWord(text string, word int) int {
	starts := sentenceStarts(ParseText(text))
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > word })
	if i == 0 {
		return 0
	}
	return i - 1
}

func endsSentence(word string) bool {
	word = strings.TrimRight(word, "\"')]}»”’")
	r, _ := utf8.DecodeLastRuneInString(word)
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}
