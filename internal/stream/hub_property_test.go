package stream

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"truedata-client/internal/models"
)

func TestHub_SymbolFiltering(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	_, tcsOnly := hub.Subscribe([]string{"TCS"})
	_, all := hub.Subscribe(nil)

	hub.Publish(models.Tick{Symbol: "INFY", LTP: 1500})

	select {
	case tick := <-all:
		if tick.Symbol != "INFY" {
			t.Errorf("all-symbols subscriber got %s", tick.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("all-symbols subscriber got nothing")
	}
	select {
	case tick := <-tcsOnly:
		t.Errorf("TCS subscriber got %s", tick.Symbol)
	default:
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	id, ch := hub.Subscribe(nil)
	hub.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel not closed after unsubscribe")
	}
	if hub.SubscriberCount() != 0 {
		t.Errorf("subscriber count = %d", hub.SubscriberCount())
	}
}

func TestHub_SlowConsumerDropsNotBlocks(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{SubscriberBufferSize: 2, SlowConsumerDropThreshold: 1})
	defer hub.Close()

	drops := 0
	hub.OnDrop = func() { drops++ }

	_, ch := hub.Subscribe(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(models.Tick{Symbol: "TCS", LTP: float64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}

	_, _, dropped := hub.Stats()
	if dropped != 8 {
		t.Errorf("dropped = %d, want 8", dropped)
	}
	if drops != 8 {
		t.Errorf("OnDrop calls = %d, want 8", drops)
	}
	// Buffered ticks still deliverable.
	if tick := <-ch; tick.LTP != 0 {
		t.Errorf("first buffered tick = %v", tick.LTP)
	}
}

// Property: with large enough buffers, every subscriber filtering on the
// published symbol receives every tick, and the hub's accounting adds up.
func TestProperty_HubDeliveryAccounting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(1)

	properties := gopter.NewProperties(parameters)

	properties.Property("received == published and broadcast == delivered", prop.ForAll(
		func(subscriberCount int, tickCount int) bool {
			hub := NewHubWithConfig(HubConfig{SubscriberBufferSize: 256, SlowConsumerDropThreshold: 10})
			defer hub.Close()

			channels := make([]<-chan models.Tick, subscriberCount)
			for i := range channels {
				_, channels[i] = hub.Subscribe([]string{"TCS"})
			}

			for i := 0; i < tickCount; i++ {
				hub.Publish(models.Tick{Symbol: "TCS", LTP: float64(i)})
			}

			received, broadcast, dropped := hub.Stats()
			if received != uint64(tickCount) || dropped != 0 {
				return false
			}
			if broadcast != uint64(tickCount*subscriberCount) {
				return false
			}
			for _, ch := range channels {
				if len(ch) != tickCount {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}
