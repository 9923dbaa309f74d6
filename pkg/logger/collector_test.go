package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu    sync.Mutex
	topic string
	got   [][]AggregatedLogEntry
	sent  chan struct{}
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	p.topic = topic
	p.got = append(p.got, payload.([]AggregatedLogEntry))
	p.mu.Unlock()
	p.sent <- struct{}{}
	return nil
}

func TestCollectorAggregatesDuplicates(t *testing.T) {
	pub := &capturePublisher{sent: make(chan struct{}, 4)}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})
	defer c.Close()

	c.AddLog("error", "submit failed", map[string]interface{}{"symbol": "AAPL"}, "x.go:1")
	c.AddLog("error", "submit failed", map[string]interface{}{"symbol": "AAPL"}, "x.go:1")
	c.AddLog("error", "close failed", nil, "x.go:2")

	select {
	case <-pub.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("threshold flush not published")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.got, 1)
	assert.Equal(t, "logs", pub.topic)
	counts := map[string]int{}
	for _, e := range pub.got[0] {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, map[string]int{"submit failed": 2, "close failed": 1}, counts)
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &capturePublisher{sent: make(chan struct{}, 4)}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	c.AddLog("warn", "stale bars", nil, "y.go:3")
	c.Close()

	select {
	case <-pub.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not flush")
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.got, 1)
	assert.Equal(t, "stale bars", pub.got[0][0].Message)
}

func TestWithKeepsCollector(t *testing.T) {
	l := Nop()
	pub := &capturePublisher{sent: make(chan struct{}, 4)}
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 1, Topic: "logs", Publisher: pub})
	defer l.RemoveCollector()

	l.With(String("component", "executor")).Error("halted", String("code", "alpaca_submit_failed"))

	select {
	case <-pub.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("child logger error not collected")
	}
}
