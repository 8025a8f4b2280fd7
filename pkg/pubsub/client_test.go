package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/digital-fulfillment/pkg/config"
)

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "proj-1"}

	assert.Equal(t, "projects/proj-1/topics/fulfillment-events", c.resourceName("topics", "fulfillment-events"))
	assert.Equal(t, "projects/proj-1/subscriptions/analytics", c.resourceName("subscriptions", " analytics "))

	full := "projects/other/topics/fulfillment-events"
	assert.Equal(t, full, c.resourceName("topics", full))
	// a topic path is not a subscription path
	assert.Equal(t, "projects/proj-1/subscriptions/"+full, c.resourceName("subscriptions", full))

	assert.Empty(t, c.resourceName("topics", ""))
	assert.Empty(t, (&Client{}).resourceName("topics", "t"))
	assert.Empty(t, (*Client)(nil).resourceName("topics", "t"))
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("t"))
	assert.Nil(t, c.Subscription("s"))
	assert.Nil(t, c.FulfillmentSubscription())
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	assert.NoError(t, c.Close())
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: " "}, config.PubSubConfig{}, false, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}
