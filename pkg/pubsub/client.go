package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/logger"
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// resource is one topic or subscription the order pipeline depends on.
type resource struct {
	kind string
	name string
}

// Client wraps the Pub/Sub v2 client for the order event topic and the
// fulfillment subscription. Publisher handles are created once per topic and
// stopped on Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	resources []resource

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
	cfg        config.PubSubConfig
}

// NewClient dials Pub/Sub and fails when a configured topic or subscription
// is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	resources := requiredResources(cfg)
	if len(resources) == 0 {
		return nil, errors.New("pubsub topic or subscription name is required")
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:     psClient,
		projectID:  projectID,
		resources:  resources,
		publishers: map[string]*pubsub.Publisher{},
		cfg:        cfg,
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project_id":   projectID,
			"topic":        cfg.OrdersTopic,
			"subscription": cfg.OrdersSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

func requiredResources(cfg config.PubSubConfig) []resource {
	var out []resource
	if name := strings.TrimSpace(cfg.OrdersTopic); name != "" {
		out = append(out, resource{kind: kindTopic, name: name})
	}
	if name := strings.TrimSpace(cfg.OrdersSubscription); name != "" {
		out = append(out, resource{kind: kindSubscription, name: name})
	}
	return out
}

// Ping checks every configured resource still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, r := range c.resources {
		if err := c.lookup(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) lookup(ctx context.Context, r resource) error {
	fullName := resourceName(c.projectID, r.kind, r.name)
	var err error
	switch r.kind {
	case kindTopic:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	default:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: fullName})
	}
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %q does not exist", strings.TrimSuffix(r.kind, "s"), r.name)
	}
	if err != nil {
		return fmt.Errorf("checking %s: %w", fullName, err)
	}
	return nil
}

// Subscription returns a subscriber for an ID or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := resourceName(c.projectID, kindSubscription, name)
	if fullName == "" {
		return nil
	}
	return c.client.Subscriber(fullName)
}

// OrdersSubscription is what the fulfillment worker receives from.
func (c *Client) OrdersSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.OrdersSubscription)
}

// Publisher returns the shared publisher for a topic.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := resourceName(c.projectID, kindTopic, name)
	if fullName == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[fullName]; ok {
		return p
	}
	p := c.client.Publisher(fullName)
	c.publishers[fullName] = p
	return p
}

// Close flushes pending publishes before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName expands a bare ID into projects/<project>/<kind>/<id>.
// Names that are already fully qualified are returned untouched.
func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", p, kind, n)
}
