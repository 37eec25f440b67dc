package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Summary is the JSON body of the completion notice.
type Summary struct {
	RunID       string    `json:"run_id"`
	Seeds       []string  `json:"seeds"`
	Visited     int       `json:"visited"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	DurationMS  int64     `json:"duration_ms"`
	Interrupted bool      `json:"interrupted"`
	ResultsURI  string    `json:"results_uri,omitempty"`
}

// NewSummary condenses report into a notice body.
func NewSummary(report Report, resultsURI string) Summary {
	return Summary{
		RunID:       report.RunID.String(),
		Seeds:       append([]string(nil), report.Seeds...),
		Visited:     len(report.Results),
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		DurationMS:  report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
		Interrupted: report.Interrupted,
		ResultsURI:  resultsURI,
	}
}

type messagePublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) (string, error)
}

type topicPublisher struct {
	topic *pubsub.Topic
}

func (t topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	return t.topic.Publish(ctx, msg).Get(ctx)
}

// PubSubConfig names the project and topic for completion notices.
type PubSubConfig struct {
	ProjectID string
	Topic     string
	// ResultsURI reports where the full results were stored, if anywhere.
	ResultsURI func() string
}

// PubSubNotifier publishes a Summary once the crawl has finished.
type PubSubNotifier struct {
	client     *pubsub.Client
	topic      *pubsub.Topic
	publisher  messagePublisher
	resultsURI func() string
	logger     *zap.Logger
}

// NewPubSubNotifier connects to Pub/Sub.
func NewPubSubNotifier(ctx context.Context, cfg PubSubConfig, logger *zap.Logger) (*PubSubNotifier, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" || strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.Topic)
	n := newPubSubNotifier(topicPublisher{topic: topic}, cfg.ResultsURI, logger)
	n.client = client
	n.topic = topic
	return n, nil
}

func newPubSubNotifier(p messagePublisher, resultsURI func() string, logger *zap.Logger) *PubSubNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubNotifier{publisher: p, resultsURI: resultsURI, logger: logger}
}

// Name implements Writer.
func (n *PubSubNotifier) Name() string { return "pubsub" }

// Write implements Writer.
func (n *PubSubNotifier) Write(ctx context.Context, report Report) error {
	if n.publisher == nil {
		return errors.New("pubsub publisher is not configured")
	}
	var uri string
	if n.resultsURI != nil {
		uri = n.resultsURI()
	}
	data, err := json.Marshal(NewSummary(report, uri))
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id":      report.RunID.String(),
			"interrupted": strconv.FormatBool(report.Interrupted),
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, attributeCarrier(msg.Attributes))

	id, err := n.publisher.Publish(ctx, msg)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	n.logger.Debug("completion notice published", zap.String("message_id", id))
	return nil
}

func (n *PubSubNotifier) notifies() {}

// attributeCarrier implements propagation.TextMapCarrier over message
// attributes.
type attributeCarrier map[string]string

func (c attributeCarrier) Get(key string) string { return c[key] }

func (c attributeCarrier) Set(key, value string) { c[key] = value }

func (c attributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Close flushes pending messages and closes the client.
func (n *PubSubNotifier) Close() error {
	if n.topic != nil {
		n.topic.Stop()
	}
	if n.client != nil {
		return n.client.Close()
	}
	return nil
}
