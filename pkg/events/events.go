// Package events formats the control events interleaved with audio on a
// stream. Every event is a single text frame of the form
//
//	{"type":"log","event":"<kind>","data":{...}}
package events

import (
	"encoding/json"
	"fmt"
)

// Kind is one of the fixed event names of the stream protocol.
type Kind string

const (
	KindRequestReceived Kind = "request_received"
	KindPhrase          Kind = "phrase"
	KindFirstChunkSent  Kind = "first_chunk_sent"
	KindStreamComplete  Kind = "stream_complete"
	KindError           Kind = "error"
)

const envelopeType = "log"

// Valid reports whether k belongs to the protocol vocabulary.
func (k Kind) Valid() bool {
	switch k {
	case KindRequestReceived, KindPhrase, KindFirstChunkSent, KindStreamComplete, KindError:
		return true
	default:
		return false
	}
}

type Event struct {
	Kind Kind
	Data map[string]any
}

type envelope struct {
	Type  string         `json:"type"`
	Event Kind           `json:"event"`
	Data  map[string]any `json:"data"`
}

// Encode renders the event as the payload of one text frame. It panics on an
// unknown kind or an unmarshalable payload; both are programming errors.
func Encode(ev Event) []byte {
	if !ev.Kind.Valid() {
		panic(fmt.Sprintf("events: unknown kind %q", ev.Kind))
	}
	data := ev.Data
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(envelope{Type: envelopeType, Event: ev.Kind, Data: data})
	if err != nil {
		panic(fmt.Sprintf("events: encode %s: %v", ev.Kind, err))
	}
	return b
}

func RequestReceived(textLength int, cfgScale float64, inferenceSteps int) Event {
	return Event{Kind: KindRequestReceived, Data: map[string]any{
		"text_length":     textLength,
		"cfg_scale":       cfgScale,
		"inference_steps": inferenceSteps,
	}}
}

func Phrase(text string) Event {
	return Event{Kind: KindPhrase, Data: map[string]any{"phrase": text}}
}

func FirstChunkSent() Event { return Event{Kind: KindFirstChunkSent} }

func StreamComplete() Event { return Event{Kind: KindStreamComplete} }

func Error(message string) Event {
	return Event{Kind: KindError, Data: map[string]any{"message": message}}
}

// Decoded is the client-side view of an event frame.
type Decoded struct {
	Type  string         `json:"type"`
	Event Kind           `json:"event"`
	Data  map[string]any `json:"data"`
}

// Decode parses a text frame produced by Encode.
func Decode(b []byte) (Decoded, error) {
	var d Decoded
	if err := json.Unmarshal(b, &d); err != nil {
		return Decoded{}, fmt.Errorf("decode event: %w", err)
	}
	if d.Type != envelopeType {
		return Decoded{}, fmt.Errorf("decode event: unexpected type %q", d.Type)
	}
	return d, nil
}
