// Package parser turns free-text survey replies such as "8 7 9 Had a great day"
// into three ratings and the influence text that accompanies them.
package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrParseFailure means the text did not contain three ratings in 1..10.
var ErrParseFailure = errors.New("parse_failure")

var (
	ratingPattern = regexp.MustCompile(`\b([1-9]|10)\b`)
	punctPattern  = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
)

// Result is a successfully parsed reply.
type Result struct {
	Joy         int
	Achievement int
	Meaning     int
	Influence   string
}

// Parse extracts the first three standalone integers in 1..10 as joy,
// achievement and meaning. Influence is what remains once those three
// matches are cut out, with punctuation turned into spaces and whitespace
// collapsed. It is empty, not absent, when nothing else was written.
func Parse(text string) (Result, error) {
	spans := ratingPattern.FindAllStringSubmatchIndex(text, -1)
	if len(spans) < 3 {
		return Result{}, ErrParseFailure
	}
	spans = spans[:3]

	var ratings [3]int
	var rest strings.Builder
	prev := 0
	for i, span := range spans {
		n, err := strconv.Atoi(text[span[2]:span[3]])
		if err != nil {
			return Result{}, ErrParseFailure
		}
		ratings[i] = n
		rest.WriteString(text[prev:span[0]])
		rest.WriteByte(' ')
		prev = span[1]
	}
	rest.WriteString(text[prev:])

	return Result{
		Joy:         ratings[0],
		Achievement: ratings[1],
		Meaning:     ratings[2],
		Influence:   cleanInfluence(rest.String()),
	}, nil
}

func cleanInfluence(s string) string {
	s = punctPattern.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// ValidRating reports whether n is on the 1..10 scale.
func ValidRating(n int) bool {
	return n >= 1 && n <= 10
}
