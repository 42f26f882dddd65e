// Package transcript holds the best-known recognition text for one session.
package transcript

import "strings"

// Buffer is the latest transcript for one session. Each result overwrites the
// previous text; once a final result arrives, intermediate results are ignored.
//
// Buffer is owned by a single goroutine and is not safe for concurrent use.
type Buffer struct {
	text  string
	final bool
}

// Intermediate records a provisional result. Empty text and results arriving
// after the final are ignored. It reports whether the text changed.
func (b *Buffer) Intermediate(text string) bool {
	if b.final || text == "" || text == b.text {
		return false
	}
	b.text = text
	return true
}

// Final records the authoritative result, overwriting whatever the buffer
// held. An empty final keeps the current text.
func (b *Buffer) Final(text string) bool {
	b.final = true
	if text == "" || text == b.text {
		return false
	}
	b.text = text
	return true
}

// Text returns the current transcript.
func (b *Buffer) Text() string {
	return b.text
}

// Empty reports whether no speech was recognized.
func (b *Buffer) Empty() bool {
	return strings.TrimSpace(b.text) == ""
}

// IsFinal reports whether the final result has been received.
func (b *Buffer) IsFinal() bool {
	return b.final
}

// Reset clears text and final state.
func (b *Buffer) Reset() {
	b.text = ""
	b.final = false
}
