package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()

	allowed := map[DeliveryStatus][]DeliveryStatus{
		DeliveryPending:    {DeliveryProcessing, DeliveryCancelled},
		DeliveryProcessing: {DeliveryDelivered, DeliveryFailed, DeliveryPending},
		DeliveryFailed:     {DeliveryPending, DeliveryCancelled, DeliveryProcessing},
		DeliveryDelivered:  nil,
		DeliveryCancelled:  nil,
	}

	all := []DeliveryStatus{DeliveryPending, DeliveryProcessing, DeliveryDelivered, DeliveryFailed, DeliveryCancelled}

	for from, targets := range allowed {
		for _, to := range all {
			assert.Equal(t, contains(targets, to), from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestDeliveryStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.True(t, DeliveryDelivered.IsTerminal())
	assert.True(t, DeliveryCancelled.IsTerminal())
	assert.False(t, DeliveryFailed.IsTerminal())
	assert.False(t, DeliveryStatus("sent").IsValid())
}

func TestSourcesOf(t *testing.T) {
	t.Parallel()

	assert.ElementsMatch(t, []DeliveryStatus{DeliveryPending, DeliveryFailed}, SourcesOf(DeliveryProcessing))
	assert.ElementsMatch(t, []DeliveryStatus{DeliveryPending, DeliveryFailed}, SourcesOf(DeliveryCancelled))
	assert.ElementsMatch(t, []DeliveryStatus{DeliveryProcessing, DeliveryFailed}, SourcesOf(DeliveryPending))
	assert.Equal(t, []DeliveryStatus{DeliveryProcessing}, SourcesOf(DeliveryDelivered))
}

func contains(list []DeliveryStatus, s DeliveryStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestDelivery_Claimable(t *testing.T) {
	t.Parallel()

	retryAt := time.Now()
	cases := []struct {
		name string
		d    Delivery
		want bool
	}{
		{"pending", Delivery{Status: DeliveryPending}, true},
		{"failed retryable", Delivery{Status: DeliveryFailed, NextRetryAt: &retryAt}, true},
		{"failed terminal", Delivery{Status: DeliveryFailed}, false},
		{"processing", Delivery{Status: DeliveryProcessing}, false},
		{"delivered", Delivery{Status: DeliveryDelivered}, false},
		{"cancelled", Delivery{Status: DeliveryCancelled}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.d.Claimable(), tc.name)
	}
}
