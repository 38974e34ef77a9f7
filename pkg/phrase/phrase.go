// Package phrase holds the ordered list of phrases a session streams and the
// parser that resolves it from the connection request.
package phrase

import "unicode/utf8"

// Phrase is one unit of requested synthesis. Position is the index in the
// session's list and is used for event correlation only.
type Phrase struct {
	Text     string
	Position int
}

// Empty reports whether the phrase carries no text.
func (p Phrase) Empty() bool { return p.Text == "" }

// Queue is the ordered phrase list of one session plus the active index.
// It is owned by a single session goroutine and is not safe for concurrent
// use.
type Queue struct {
	phrases []Phrase
	active  int
}

// NewQueue builds a queue from texts. An empty input degrades to a single
// empty phrase so a session always makes one streaming pass.
func NewQueue(texts []string) *Queue {
	if len(texts) == 0 {
		texts = []string{""}
	}
	phrases := make([]Phrase, len(texts))
	for i, t := range texts {
		phrases[i] = Phrase{Text: t, Position: i}
	}
	return &Queue{phrases: phrases}
}

func (q *Queue) Len() int { return len(q.phrases) }

// Index returns the active index; it equals Len once every phrase is done.
func (q *Queue) Index() int { return q.active }

func (q *Queue) Done() bool { return q.active >= len(q.phrases) }

// Active returns the phrase at the active index.
func (q *Queue) Active() (Phrase, bool) {
	if q.Done() {
		return Phrase{}, false
	}
	return q.phrases[q.active], true
}

// Advance moves past the active phrase and reports whether another remains.
func (q *Queue) Advance() bool {
	if q.active < len(q.phrases) {
		q.active++
	}
	return !q.Done()
}

// Phrases returns a copy of the queued phrases.
func (q *Queue) Phrases() []Phrase {
	return append([]Phrase(nil), q.phrases...)
}

// TextLength is the total rune count across all phrases.
func (q *Queue) TextLength() int {
	n := 0
	for _, p := range q.phrases {
		n += utf8.RuneCountInString(p.Text)
	}
	return n
}
