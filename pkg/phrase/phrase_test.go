package phrase

import "testing"

func TestQueueDegradesToSingleEmptyPhrase(t *testing.T) {
	q := NewQueue(nil)
	if q.Len() != 1 {
		t.Fatalf("expected one phrase, got %d", q.Len())
	}
	p, ok := q.Active()
	if !ok || !p.Empty() || p.Position != 0 {
		t.Fatalf("expected empty phrase at 0, got %+v ok=%v", p, ok)
	}
}

func TestQueueAdvance(t *testing.T) {
	q := NewQueue([]string{"A", "B", "C"})
	var seen []string
	for {
		p, ok := q.Active()
		if !ok {
			break
		}
		if p.Position != q.Index() {
			t.Fatalf("position %d != index %d", p.Position, q.Index())
		}
		seen = append(seen, p.Text)
		more := q.Advance()
		if more == q.Done() {
			t.Fatalf("Advance result disagrees with Done at %d", q.Index())
		}
	}
	if len(seen) != 3 || seen[0] != "A" || seen[2] != "C" {
		t.Fatalf("unexpected order %v", seen)
	}
	if q.Index() != q.Len() {
		t.Fatalf("expected index == len when done, got %d", q.Index())
	}
	if q.Advance() {
		t.Fatalf("advance past end must report false")
	}
	if q.Index() != 3 {
		t.Fatalf("index must not exceed len, got %d", q.Index())
	}
}

func TestQueueTextLengthCountsRunes(t *testing.T) {
	q := NewQueue([]string{"héllo", "ab"})
	if q.TextLength() != 7 {
		t.Fatalf("expected 7 runes, got %d", q.TextLength())
	}
}
