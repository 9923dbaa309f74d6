package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Publisher ships aggregated log batches, e.g. to a Kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval (e.g., 30s)
	CountThreshold int           // max unique logs before flush (e.g., 100)
	Topic          string        // topic to send aggregated logs
	Publisher      Publisher     // interface to send aggregated logs
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector folds identical error/warn lines (same level, message,
// fields and caller) into one entry with a count, so a halted engine
// retrying every cycle ships one record per interval instead of hundreds.
type LogCollector struct {
	config   *CollectionConfig
	logMap   map[string]*AggregatedLogEntry
	mutex    sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sends    sync.WaitGroup
	fallback zerolog.Logger
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	ctx, cancel := context.WithCancel(context.Background())
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}

	collector := &LogCollector{
		config:   config,
		logMap:   make(map[string]*AggregatedLogEntry),
		ctx:      ctx,
		cancel:   cancel,
		fallback: zerolog.New(os.Stderr).With().Timestamp().Str("component", "log_collector").Logger(),
	}

	collector.wg.Add(1)
	go collector.periodicFlush()

	return collector
}

func (d *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := d.generateKey(level, message, fields, caller)

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if entry, exists := d.logMap[key]; exists {
		entry.Count++
		entry.LastSeen = now
	} else {
		d.logMap[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(d.logMap) >= d.config.CountThreshold {
		d.sendAsync(d.drain())
	}
}

func (d *LogCollector) generateKey(level, message string, fields map[string]interface{}, caller string) string {
	data := struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{
		Level:   level,
		Message: message,
		Fields:  fields,
		Caller:  caller,
	}

	jsonData, _ := json.Marshal(data)
	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash)
}

func (d *LogCollector) periodicFlush() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.mutex.Lock()
			batch := d.drain()
			d.mutex.Unlock()
			d.sendAsync(batch)
		case <-d.ctx.Done():
			d.mutex.Lock()
			batch := d.drain()
			d.mutex.Unlock()
			d.send(batch)
			return
		}
	}
}

// drain empties the map and returns its entries, most frequent first.
// Callers hold the mutex.
func (d *LogCollector) drain() []AggregatedLogEntry {
	if len(d.logMap) == 0 {
		return nil
	}
	logs := make([]AggregatedLogEntry, 0, len(d.logMap))
	for _, entry := range d.logMap {
		logs = append(logs, *entry)
	}
	d.logMap = make(map[string]*AggregatedLogEntry)

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].Count != logs[j].Count {
			return logs[i].Count > logs[j].Count
		}
		return logs[i].FirstSeen.Before(logs[j].FirstSeen)
	})
	return logs
}

func (d *LogCollector) sendAsync(logs []AggregatedLogEntry) {
	if len(logs) == 0 {
		return
	}
	d.sends.Add(1)
	go func() {
		defer d.sends.Done()
		d.send(logs)
	}()
}

func (d *LogCollector) send(logs []AggregatedLogEntry) {
	if len(logs) == 0 || d.config.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.config.Publisher.PublishMessage(ctx, d.config.Topic, logs); err != nil {
		d.fallback.Error().Err(err).Int("entries", len(logs)).Str("topic", d.config.Topic).Msg("aggregated logs not published")
	}
}

// Close stops the flush loop, publishes what is left and waits for
// in-flight sends.
func (d *LogCollector) Close() {
	d.cancel()
	d.wg.Wait()
	d.sends.Wait()
}
