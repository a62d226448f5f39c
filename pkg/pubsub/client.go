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

	"github.com/angelmondragon/creatorpay-backend/pkg/config"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

var errProjectIDRequired = errors.New("gcp project id is required")

// NewClient creates a Pub/Sub v2 client and, when a payouts subscription is
// configured, verifies that it exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: gcp.ProjectID,
		cfg:       cfg,
	}

	if err := c.ensureSubscriptionsConfigured(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", cfg.PayoutsTopic), "pubsub.client.ready")
	}
	return c, nil
}

func (c *Client) ensureSubscriptionsConfigured(ctx context.Context) error {
	for _, name := range subscriptionNames(c.cfg) {
		if err := c.ensureSubscriptionExists(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func subscriptionNames(cfg config.PubSubConfig) []string {
	names := []string{}
	for _, name := range []string{cfg.PayoutsSubscription, cfg.AnalyticsSubscription} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

func (c *Client) ensureSubscriptionExists(ctx context.Context, name string) error {
	fullName := resourceName(c.projectID, "subscriptions", name)
	if fullName == "" {
		return fmt.Errorf("subscription %q not configured", name)
	}

	_, err := c.client.SubscriptionAdminClient.GetSubscription(
		ctx,
		&pubsubpb.GetSubscriptionRequest{Subscription: fullName},
	)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("subscription %q does not exist", name)
		}
		return fmt.Errorf("checking subscription %q: %w", name, err)
	}
	return nil
}

// Subscription returns a Subscriber handle for a subscription ID or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := resourceName(c.projectID, "subscriptions", name)
	if fullName == "" {
		return nil
	}
	return c.client.Subscriber(fullName)
}

// PayoutsSubscription returns the subscriber consuming payout events.
func (c *Client) PayoutsSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.cfg.PayoutsSubscription)
}

// AnalyticsSubscription returns the subscriber feeding the ledger analytics sink.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.cfg.AnalyticsSubscription)
}

// Publisher returns a publisher handle for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := resourceName(c.projectID, "topics", name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

// PayoutsPublisher returns the publisher for the payouts topic.
func (c *Client) PayoutsPublisher() *pubsub.Publisher {
	return c.Publisher(c.cfg.PayoutsTopic)
}

// Ping verifies Pub/Sub connectivity by checking configured subscriptions exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.ensureSubscriptionsConfigured(ctx)
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands an ID to projects/<project>/<kind>/<id>; full names pass through.
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
