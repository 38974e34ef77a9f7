package observers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/voxstream/pkg/metrics"
	"github.com/harunnryd/voxstream/pkg/resilience"
	"github.com/nats-io/nats.go"
)

type BusConfig struct {
	URL            string `mapstructure:"url"`
	SubjectPrefix  string `mapstructure:"subject_prefix"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	Token          string `mapstructure:"token"`
	ConnectTimeout int    `mapstructure:"connect_timeout_ms"`
	ConnectRetries int    `mapstructure:"connect_retries"`
	// Embedded starts an in-process server on EmbeddedPort; URL may then be
	// left empty.
	Embedded     bool `mapstructure:"embedded"`
	EmbeddedPort int  `mapstructure:"embedded_port"`
}

// Publisher is the subset of *nats.Conn the bus observer needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ConnectBus dials the NATS servers in cfg.URL (comma separated), retrying
// the initial connect cfg.ConnectRetries times.
func ConnectBus(ctx context.Context, cfg BusConfig, log *slog.Logger) (*nats.Conn, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("bus url required")
	}
	timeout := time.Duration(cfg.ConnectTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	options := []nats.Option{
		nats.Name("voxstream"),
		nats.Timeout(timeout),
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	var conn *nats.Conn
	err := resilience.NewRetryPolicy(cfg.ConnectRetries, 250*time.Millisecond).Do(ctx, func(attempt int) error {
		c, err := nats.Connect(cfg.URL, options...)
		if err != nil {
			if log != nil && attempt < cfg.ConnectRetries {
				log.Warn("bus_connect_retry", "attempt", attempt+1, "error", err.Error())
			}
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	if log != nil {
		log.Info("bus_connected", "url", conn.ConnectedUrlRedacted())
	}
	return conn, nil
}

// BusObserver publishes session lifecycle events on
// <prefix>.<event name>. Per-chunk events are never published.
type BusObserver struct {
	pub     Publisher
	prefix  string
	log     *slog.Logger
	breaker *resilience.CircuitBreaker
}

type busMessage struct {
	Event     string            `json:"event"`
	SessionID string            `json:"session_id"`
	Time      time.Time         `json:"time"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	Fields    map[string]any    `json:"fields,omitempty"`
}

func NewBusObserver(pub Publisher, prefix string, log *slog.Logger) *BusObserver {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "voxstream.session"
	}
	if log == nil {
		log = slog.Default()
	}
	return &BusObserver{
		pub:     pub,
		prefix:  prefix,
		log:     log,
		breaker: resilience.NewCircuitBreaker(5, 30*time.Second),
	}
}

func (o *BusObserver) RecordEvent(ev metrics.MetricsEvent) {
	switch ev.Name {
	case metrics.EventSessionStart, metrics.EventRequestReceived, metrics.EventFirstChunk, metrics.EventSessionEnd:
	default:
		return
	}
	msg := busMessage{
		Event:     ev.Name,
		SessionID: ev.Tag(metrics.TagSessionID),
		Time:      ev.Time.UTC(),
		Value:     ev.Value,
		Tags:      tagsWithout(ev.Tags, metrics.TagSessionID),
		Fields:    redactFields(ev.Fields),
	}
	if !o.breaker.Allow() {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	subject := o.prefix + "." + ev.Name
	if err := o.pub.Publish(subject, data); err != nil {
		o.log.Debug("bus_publish_failed", "subject", subject, "error", err.Error())
		if o.breaker.OnError() {
			o.log.Warn("bus_publish_suspended", "subject_prefix", o.prefix, "error", err.Error())
		}
		return
	}
	o.breaker.OnSuccess()
}

var _ metrics.Observer = (*BusObserver)(nil)
