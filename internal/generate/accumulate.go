package generate

import (
	"regexp"
	"strings"
)

var (
	leadingFence  = regexp.MustCompile("^```[\\w+-]*\\n?")
	trailingFence = regexp.MustCompile("\\n?```$")
)

// StripFences removes a leading ```lang marker and a trailing ``` marker, then trims.
// Applying it to already-clean code is a no-op.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	text = leadingFence.ReplaceAllString(text, "")
	text = trailingFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Accumulator folds streamed fragments into the final code.
type Accumulator struct {
	buf    strings.Builder
	chunks int
}

// Add appends one fragment and returns the running raw text.
func (a *Accumulator) Add(chunk string) string {
	a.buf.WriteString(chunk)
	a.chunks++
	return a.buf.String()
}

func (a *Accumulator) Chunks() int { return a.chunks }

func (a *Accumulator) Raw() string { return a.buf.String() }

// Result is the fence-stripped text accumulated so far.
func (a *Accumulator) Result() string { return StripFences(a.buf.String()) }

// Fold reduces a chunk sequence to its final code.
func Fold(chunks []string) string {
	var acc Accumulator
	for _, c := range chunks {
		acc.Add(c)
	}
	return acc.Result()
}
