package reader

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitMergesShortFragments(t *testing.T) {
	got := Split("Hi. Go. This is a longer sentence. End.")
	want := []string{"Hi. Go.", "This is a longer sentence.", "End."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split = %q, want %q", got, want)
	}
}

func TestSplitIsIdempotent(t *testing.T) {
	inputs := []string{
		"Hi. Go. This is a longer sentence. End.",
		"One!  Two?\n\nThree… and   four. x",
		`He said "Stop!" Then he left. Ok.`,
		"no terminal punctuation at all",
	}
	for _, in := range inputs {
		first := Split(in)
		again := Split(strings.Join(first, " "))
		if !reflect.DeepEqual(first, again) {
			t.Errorf("Split(%q): %q then %q", in, first, again)
		}
	}
}

func TestSplitClosingQuotes(t *testing.T) {
	got := Split(`He said "Stop!" Then he left.`)
	want := []string{`He said "Stop!"`, "Then he left."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split = %q, want %q", got, want)
	}
}

func TestSplitEmpty(t *testing.T) {
	if got := Split(" \n\t "); len(got) != 0 {
		t.Fatalf("Split(blank) = %q", got)
	}
}

func TestSplitKeepsShortFinalFragment(t *testing.T) {
	got := Split("A reasonably long sentence. Ok")
	if len(got) != 2 || got[1] != "Ok" {
		t.Fatalf("Split = %q", got)
	}
}

func TestCountWords(t *testing.T) {
	if n := CountWords("  one two\nthree  "); n != 3 {
		t.Errorf("CountWords = %d, want 3", n)
	}
}

func TestSentenceOfWord(t *testing.T) {
	text := "Hi. Go. This is a longer sentence. End."
	tests := map[int]int{0: 0, 1: 0, 2: 1, 3: 1, 6: 1, 7: 2, 99: 2}
	for word, want := range tests {
		if got := SentenceOfWord(text, word); got != want {
			t.Errorf("SentenceOfWord(%d) = %d, want %d", word, got, want)
		}
	}
}

func TestFindSentenceStarts(t *testing.T) {
	words := ParseText("First one. Second one! Third one? Fourth one")
	got := FindSentenceStarts(words)
	want := []int{0, 2, 4, 6}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FindSentenceStarts = %v, want %v", got, want)
	}
}
