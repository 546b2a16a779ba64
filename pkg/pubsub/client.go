package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNothingRequired   = errors.New("pubsub client needs at least one topic or subscription")
)

// Client wraps a Pub/Sub v2 client together with the resources the calling
// binary depends on. Ping re-verifies those resources.
type Client struct {
	client        *pubsub.Client
	projectID     string
	cfg           config.PubSubConfig
	topics        []string
	subscriptions []string
}

// Option declares a resource the binary requires.
type Option func(*Client)

// WithTopics requires the named topics (IDs or full resource names).
func WithTopics(names ...string) Option {
	return func(c *Client) { c.topics = appendNonEmpty(c.topics, names) }
}

// WithSubscriptions requires the named subscriptions.
func WithSubscriptions(names ...string) Option {
	return func(c *Client) { c.subscriptions = appendNonEmpty(c.subscriptions, names) }
}

// NewClient creates a Pub/Sub v2 client and checks that every required
// resource exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	c := &Client{projectID: strings.TrimSpace(gcp.ProjectID), cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.topics) == 0 && len(c.subscriptions) == 0 {
		return nil, errNothingRequired
	}

	psClient, err := pubsub.NewClient(ctx, c.projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c.client = psClient

	if err := c.verify(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topics":        c.topics,
			"subscriptions": c.subscriptions,
		}), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) verify(ctx context.Context) error {
	for _, name := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
			Topic: c.resourceName(kindTopic, name),
		})
		if err := classify(kindTopic, name, err); err != nil {
			return err
		}
	}
	for _, name := range c.subscriptions {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
			Subscription: c.resourceName(kindSubscription, name),
		})
		if err := classify(kindSubscription, name, err); err != nil {
			return err
		}
	}
	return nil
}

func classify(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", strings.TrimSuffix(kind, "s"), name)
	default:
		return fmt.Errorf("checking %s %q: %w", strings.TrimSuffix(kind, "s"), name, err)
	}
}

// Subscription returns a Subscriber for a subscription ID or resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.client.Subscriber(c.resourceName(kindSubscription, name))
}

// StockSubscription returns the subscriber for batch and allocation events.
func (c *Client) StockSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.StockSubscription)
}

// Publisher returns a publisher for a topic ID or resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.client.Publisher(c.resourceName(kindTopic, name))
}

// Ping re-checks the required topics and subscriptions.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.verify(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) resourceName(kind, name string) string {
	return resourceName(c.projectID, kind, name)
}

// resourceName expands a bare ID to projects/<project>/<kind>/<id>; full
// resource names pass through.
func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	return fmt.Sprintf("projects/%s/%s/%s", projectID, kind, n)
}

func appendNonEmpty(dst, names []string) []string {
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			dst = append(dst, trimmed)
		}
	}
	return dst
}
