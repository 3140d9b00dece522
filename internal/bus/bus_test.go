package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBindingMatchesStarWildcard(t *testing.T) {
	b := Binding{Queue: "subscription_commands", Exchange: ExchangeCommands, RoutingKey: "subscription.*"}
	assert.True(t, b.Matches("subscription.create"))
	assert.True(t, b.Matches("subscription.remove"))
	assert.False(t, b.Matches("subscription.create.extra"))
	assert.False(t, b.Matches("kol.add"))
}

func TestBindingMatchesCatchAllHash(t *testing.T) {
	b := Binding{Queue: "dead_letter", Exchange: ExchangeDeadLetter, RoutingKey: "#"}
	assert.True(t, b.Matches("failed"))
	assert.True(t, b.Matches("anything.at.all"))
}

func TestBindingMatchesExactKey(t *testing.T) {
	b := Binding{Queue: "client_notifications", Exchange: ExchangeNotifications, RoutingKey: "client.notification"}
	assert.True(t, b.Matches("client.notification"))
	assert.False(t, b.Matches("client.notification.extra"))
	assert.False(t, b.Matches("service.status"))
}

func TestRetryDelayExponentialBackoff(t *testing.T) {
	base := time.Second
	assert.Equal(t, time.Second, retryDelay(base, 0))
	assert.Equal(t, 2*time.Second, retryDelay(base, 1))
	assert.Equal(t, 4*time.Second, retryDelay(base, 2))
	assert.Equal(t, 8*time.Second, retryDelay(base, 3))
}
