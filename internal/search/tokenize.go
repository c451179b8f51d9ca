// Package search is the full-text index over stored statute text.
package search

import (
	"strings"
	"unicode"
)

// Token is a normalised term with its rune span in the source text.
type Token struct {
	Term  string
	Start int
	End   int
}

// stopwords is deliberately short: single letters, "§" and numbers are
// meaningful in statute text and must stay searchable.
var stopwords = map[string]bool{
	"the":  true,
	"of":   true,
	"and":  true,
	"or":   true,
	"to":   true,
	"in":   true,
	"an":   true,
	"for":  true,
	"by":   true,
	"is":   true,
	"be":   true,
	"that": true,
	"with": true,
	"as":   true,
	"on":   true,
}

// Tokenize splits text into case-folded terms, dropping stopwords.
func Tokenize(text string) []string {
	toks := tokenizeSpans(text)
	terms := make([]string, len(toks))
	for i, t := range toks {
		terms[i] = t.Term
	}
	return terms
}

func tokenizeSpans(text string) []Token {
	var (
		out   []Token
		b     strings.Builder
		start = -1
	)
	flush := func(end int) {
		if start < 0 {
			return
		}
		term := b.String()
		if !stopwords[term] {
			out = append(out, Token{Term: term, Start: start, End: end})
		}
		b.Reset()
		start = -1
	}

	runes := []rune(text)
	for i, r := range runes {
		switch {
		case r == '§':
			flush(i)
			out = append(out, Token{Term: "§", Start: i, End: i + 1})
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if start < 0 {
				start = i
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			flush(i)
		}
	}
	flush(len(runes))
	return out
}
