package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/voxstream/pkg/events"
	"github.com/harunnryd/voxstream/pkg/pacing"
	"gopkg.in/yaml.v3"
)

type sequenceFile struct {
	Sequence []string `yaml:"sequence"`
	Voice    string   `yaml:"voice"`
}

type startMessage struct {
	Type     string   `json:"type"`
	Sequence []string `json:"sequence"`
	Voice    string   `json:"voice,omitempty"`
}

func main() {
	server := flag.String("url", "ws://localhost:8000/stream", "stream endpoint")
	text := flag.String("text", "", "single phrase sent as a query parameter")
	voice := flag.String("voice", "", "voice name")
	cfgScale := flag.Float64("cfg", 0, "cfg scale, 0 keeps the server default")
	steps := flag.Int("steps", 0, "inference steps, 0 keeps the server default")
	seqPath := flag.String("sequence", "", "YAML file with a sequence of phrases")
	out := flag.String("out", "", "write the raw PCM16 audio to this file")
	rate := flag.Int("rate", 24000, "sample rate used to report audio duration")
	timeout := flag.Duration("timeout", 2*time.Minute, "give up after this long")
	flag.Parse()

	var seq sequenceFile
	if *seqPath != "" {
		var err error
		if seq, err = loadSequence(*seqPath); err != nil {
			fail("sequence error:", err)
		}
	}
	if *text == "" && len(seq.Sequence) == 0 {
		fmt.Println("usage: stream_client -text=hello | -sequence=phrases.yaml [-url=ws://host/stream] [-out=audio.pcm]")
		os.Exit(1)
	}

	target, err := buildURL(*server, *text, *voice, *cfgScale, *steps)
	if err != nil {
		fail("url error:", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		fail("dial error:", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(*timeout))

	if len(seq.Sequence) > 0 {
		msg, _ := json.Marshal(startMessage{Type: "start", Sequence: seq.Sequence, Voice: seq.Voice})
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			fail("send start:", err)
		}
	}

	var sink *os.File
	if *out != "" {
		if sink, err = os.Create(*out); err != nil {
			fail("output error:", err)
		}
		defer sink.Close()
	}

	started := time.Now()
	var total, chunks int
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				fmt.Printf("closed: code=%d reason=%q\n", ce.Code, ce.Text)
				break
			}
			fail("read error:", err)
		}
		if kind == websocket.BinaryMessage {
			chunks++
			total += len(data)
			fmt.Printf("chunk %d: %d bytes\n", chunks, len(data))
			if sink != nil {
				if _, err := sink.Write(data); err != nil {
					fail("write error:", err)
				}
			}
			continue
		}
		ev, err := events.Decode(data)
		if err != nil {
			fmt.Println("text:", string(data))
			continue
		}
		fmt.Printf("event %s %v\n", ev.Event, ev.Data)
	}
	fmt.Printf("received %d chunks, %d bytes, %.2fs of audio in %s\n",
		chunks, total, pacing.Duration(total, *rate).Seconds(), time.Since(started).Round(time.Millisecond))
}

func loadSequence(path string) (sequenceFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return sequenceFile{}, err
	}
	var seq sequenceFile
	if err := yaml.Unmarshal(b, &seq); err == nil && len(seq.Sequence) > 0 {
		return seq, nil
	}
	// A bare YAML list is accepted too.
	var list []string
	if err := yaml.Unmarshal(b, &list); err != nil {
		return sequenceFile{}, fmt.Errorf("%s: expected a list or a sequence key: %w", path, err)
	}
	return sequenceFile{Sequence: list}, nil
}

func buildURL(base, text, voice string, cfgScale float64, steps int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	if text != "" {
		q.Set("text", text)
	}
	if voice != "" {
		q.Set("voice", voice)
	}
	if cfgScale > 0 {
		q.Set("cfg", strconv.FormatFloat(cfgScale, 'f', -1, 64))
	}
	if steps > 0 {
		q.Set("steps", strconv.Itoa(steps))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func fail(msg string, err error) {
	fmt.Println(msg, err)
	os.Exit(1)
}
