// Package pubsub forwards unsupported URLs to an external resolver through a
// Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Config selects the topic that receives delegated URLs.
type Config struct {
	Enabled   bool
	ProjectID string
	TopicID   string
	// ClientOptions are passed to pubsub.NewClient; tests use them to dial an emulator.
	ClientOptions []option.ClientOption
}

// Message is the JSON body published for every delegated URL.
type Message struct {
	URL         string `json:"url"`
	ParentTitle string `json:"parent_title,omitempty"`
	RunID       string `json:"run_id"`
}

// Delegate publishes unsupported URLs. Setup is lazy; a failed setup disables
// the delegate for the rest of the run.
type Delegate struct {
	cfg    Config
	runID  uuid.UUID
	logger *zap.Logger

	mu      sync.Mutex
	enabled bool
	client  *pubsub.Client
	topic   *pubsub.Topic
}

// New builds a Delegate. Nothing is dialled until Setup.
func New(cfg Config, runID uuid.UUID, logger *zap.Logger) *Delegate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Delegate{
		cfg:     cfg,
		runID:   runID,
		logger:  logger.Named("delegate"),
		enabled: cfg.Enabled,
	}
}

// Enabled reports whether the delegate may still be used.
func (d *Delegate) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Ready reports whether Setup has succeeded.
func (d *Delegate) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.topic != nil
}

// Setup creates the client and verifies the topic exists.
func (d *Delegate) Setup(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.topic != nil {
		return nil
	}
	if !d.enabled {
		return errors.New("delegate is disabled")
	}
	if err := d.setupLocked(ctx); err != nil {
		d.enabled = false
		d.logger.Warn("delegate disabled", zap.Error(err))
		return err
	}
	d.logger.Info("delegate ready",
		zap.String("project", d.cfg.ProjectID),
		zap.String("topic", d.cfg.TopicID),
	)
	return nil
}

func (d *Delegate) setupLocked(ctx context.Context) error {
	if d.cfg.ProjectID == "" || d.cfg.TopicID == "" {
		return errors.New("delegate project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, d.cfg.ProjectID, d.cfg.ClientOptions...)
	if err != nil {
		return fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(d.cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		d.closeClient(client)
		return fmt.Errorf("check topic %q: %w", d.cfg.TopicID, err)
	}
	if !exists {
		d.closeClient(client)
		return fmt.Errorf("pubsub topic %q does not exist in project %q", d.cfg.TopicID, d.cfg.ProjectID)
	}
	d.client = client
	d.topic = topic
	return nil
}

func (d *Delegate) closeClient(client *pubsub.Client) {
	if err := client.Close(); err != nil {
		d.logger.Warn("close pubsub client", zap.Error(err))
	}
}

// Send publishes u and waits for the server to acknowledge it.
func (d *Delegate) Send(ctx context.Context, u *url.URL, parentTitle string) error {
	if u == nil {
		return errors.New("url is required")
	}
	d.mu.Lock()
	topic := d.topic
	d.mu.Unlock()
	if topic == nil {
		return errors.New("delegate is not set up")
	}
	data, err := json.Marshal(Message{URL: u.String(), ParentTitle: parentTitle, RunID: d.runID.String()})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"run_id": d.runID.String()},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	d.logger.Debug("delegated url", zap.String("url", u.String()), zap.String("message_id", id))
	return nil
}

// Close flushes pending publishes and closes the client.
func (d *Delegate) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.topic != nil {
		d.topic.Stop()
		d.topic = nil
	}
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	if err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
