package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionHasTokenQuota(t *testing.T) {
	watch := Subscription{Type: SubscriptionTrade, TokenBuyCount: 1, WatchConfig: &WatchConfig{}}
	assert.True(t, watch.HasTokenQuota())

	noWatchConfig := Subscription{Type: SubscriptionTrade, TokenBuyCount: 1}
	assert.False(t, noWatchConfig.HasTokenQuota())

	zeroCount := Subscription{Type: SubscriptionTrade, WatchConfig: &WatchConfig{}}
	assert.False(t, zeroCount.HasTokenQuota())

	watchType := Subscription{Type: SubscriptionWatch, TokenBuyCount: 1, WatchConfig: &WatchConfig{}}
	assert.False(t, watchType.HasTokenQuota())
}
