package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/voxstream/pkg/adapters/source"
	"github.com/harunnryd/voxstream/pkg/errorsx"
	"github.com/harunnryd/voxstream/pkg/phrase"
)

func TestSourceEmitsScriptedChunks(t *testing.T) {
	src := NewSource(SourceConfig{ChunksPerPhrase: 2, ChunkBytes: 4})
	st, err := src.BeginPhrase(context.Background(), phrase.Phrase{Text: "B", Position: 1})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for seq := 0; seq < 2; seq++ {
		f, err := st.Next(context.Background())
		if err != nil {
			t.Fatalf("next %d: %v", seq, err)
		}
		data := f.RawPayload()
		if len(data) != 4 || data[0] != 1 || data[1] != byte(seq) {
			t.Fatalf("unexpected payload %v", data)
		}
	}
	if _, err := st.Next(context.Background()); !source.IsEndOfPhrase(err) {
		t.Fatalf("expected end of phrase, got %v", err)
	}
	if got := src.Begun(); len(got) != 1 || got[0].Text != "B" {
		t.Fatalf("unexpected begun list %v", got)
	}
}

func TestSourceInjectedFailure(t *testing.T) {
	src := NewSource(SourceConfig{ChunksPerPhrase: 5, Fail: &Failure{AfterChunks: 1}})
	st, _ := src.BeginPhrase(context.Background(), phrase.Phrase{Text: "A"})
	if _, err := st.Next(context.Background()); err != nil {
		t.Fatalf("first chunk: %v", err)
	}
	_, err := st.Next(context.Background())
	if !errors.Is(err, ErrInjected) || !errorsx.HasReason(err, errorsx.ReasonSourceFailure) {
		t.Fatalf("expected reasoned injected failure, got %v", err)
	}
}

func TestSourceFailBegin(t *testing.T) {
	src := NewSource(SourceConfig{Fail: &Failure{AtBegin: true}})
	if _, err := src.BeginPhrase(context.Background(), phrase.Phrase{}); !errors.Is(err, ErrInjected) {
		t.Fatalf("expected begin failure, got %v", err)
	}
}
