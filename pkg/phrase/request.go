package phrase

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/harunnryd/voxstream/pkg/configutil"
	"github.com/harunnryd/voxstream/pkg/errorsx"
)

// Origin records where a request's phrases came from.
type Origin string

const (
	OriginNone    Origin = "none"
	OriginQuery   Origin = "query"
	OriginMessage Origin = "message"
)

// Params are the synthesis knobs a client may set. They are opaque to the
// session and only echoed back in the request_received event.
type Params struct {
	Voice          string
	CFGScale       float64
	InferenceSteps int
}

// Request is the typed result of phrase resolution. Texts is nil when nothing
// usable was found; see Empty.
type Request struct {
	Texts  []string
	Params Params
	Origin Origin
	// Notes collects lenient-parsing decisions worth a warning log line:
	// dropped fields, coerced sequence entries and the like.
	Notes []string
}

// Empty reports whether no phrase text was resolved.
func (r Request) Empty() bool { return len(r.Texts) == 0 }

// Queue builds the session's phrase queue, degrading to one empty phrase.
func (r Request) Queue() *Queue { return NewQueue(r.Texts) }

// ParseQuery resolves a request from connection query parameters. The
// parameters recognised are text, voice, cfg and steps; values that do not
// parse keep the defaults.
func ParseQuery(values url.Values, defaults Params) Request {
	req := Request{Params: defaults, Origin: OriginNone}
	if v := strings.TrimSpace(values.Get("voice")); v != "" {
		req.Params.Voice = v
	}
	if v := values.Get("cfg"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			req.Params.CFGScale = f
		} else {
			req.Notes = append(req.Notes, "query cfg ignored: "+v)
		}
	}
	if v := values.Get("steps"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.Params.InferenceSteps = n
		} else {
			req.Notes = append(req.Notes, "query steps ignored: "+v)
		}
	}
	if text := values.Get("text"); text != "" {
		req.Texts = []string{text}
		req.Origin = OriginQuery
	}
	return req
}

type startMessage struct {
	Type           string   `mapstructure:"type"`
	Text           *string  `mapstructure:"text"`
	Sequence       []any    `mapstructure:"sequence"`
	Voice          string   `mapstructure:"voice"`
	CFGScale       *float64 `mapstructure:"cfg_scale"`
	CFG            *float64 `mapstructure:"cfg"`
	InferenceSteps *int     `mapstructure:"inference_steps"`
	Steps          *int     `mapstructure:"steps"`
}

// ParseStart resolves a request from the first inbound control message,
// starting from base (normally the ParseQuery result). A malformed message
// yields base with no texts plus a request_malformed error; callers treat
// that as absence of a phrase, never as a failure to report to the peer.
//
// When the sequence key is present it wins over text, even if it is empty.
// Non-string sequence entries become empty phrases and are noted.
func ParseStart(data []byte, base Request) (Request, error) {
	req := base
	req.Texts = nil
	req.Origin = OriginMessage
	req.Notes = append([]string(nil), base.Notes...)

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		req.Origin = OriginNone
		return req, errorsx.Wrapf(err, errorsx.ReasonRequestMalformed, "decode start message")
	}
	var msg startMessage
	if err := configutil.DecodeSettings(raw, &msg); err != nil {
		req.Origin = OriginNone
		return req, errorsx.Wrapf(err, errorsx.ReasonRequestMalformed, "decode start message")
	}
	if t := strings.TrimSpace(msg.Type); t != "" && !strings.EqualFold(t, "start") {
		req.Origin = OriginNone
		return req, errorsx.New(errorsx.ReasonRequestMalformed, "unexpected control message type: "+t)
	}

	if v := strings.TrimSpace(msg.Voice); v != "" {
		req.Params.Voice = v
	}
	if msg.CFGScale != nil {
		req.Params.CFGScale = *msg.CFGScale
	} else if msg.CFG != nil {
		req.Params.CFGScale = *msg.CFG
	}
	if msg.InferenceSteps != nil {
		req.Params.InferenceSteps = *msg.InferenceSteps
	} else if msg.Steps != nil {
		req.Params.InferenceSteps = *msg.Steps
	}

	if _, ok := lookupKey(raw, "sequence"); ok {
		texts := make([]string, 0, len(msg.Sequence))
		for i, entry := range msg.Sequence {
			s, ok := entry.(string)
			if !ok {
				req.Notes = append(req.Notes, fmt.Sprintf("sequence[%d] is %T, streaming empty phrase", i, entry))
			}
			texts = append(texts, s)
		}
		if len(texts) == 0 {
			req.Notes = append(req.Notes, "sequence is empty")
		}
		req.Texts = texts
		return req, nil
	}
	if msg.Text != nil && *msg.Text != "" {
		req.Texts = []string{*msg.Text}
		return req, nil
	}
	req.Notes = append(req.Notes, "start message carries no text")
	return req, nil
}

// lookupKey finds key using the same normalisation the decoder applies.
func lookupKey(m map[string]any, key string) (any, bool) {
	want := normalize(key)
	for k, v := range m {
		if normalize(k) == want {
			return v, true
		}
	}
	return nil, false
}

func normalize(v string) string {
	v = strings.ToLower(v)
	v = strings.ReplaceAll(v, "_", "")
	return strings.ReplaceAll(v, "-", "")
}
