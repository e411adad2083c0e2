// Package history records changeset apply metrics to InfluxDB.
//
// Like the MQTT notifier this is optional: a gateway without InfluxDB
// configured simply keeps no apply history. Writes are batched and
// non-blocking so the request path never waits on the time-series store.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/syncgate/internal/infrastructure/config"
	"github.com/nerrad567/syncgate/internal/infrastructure/logging"
)

const (
	connectTimeout = 10 * time.Second

	millisecondsPerSecond = 1000
)

// Recorder writes apply-history points.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig
	logger   *logging.Logger

	connected bool
	mu        sync.RWMutex
}

// Connect creates the client, verifies connectivity, and configures the
// non-blocking write API.
func Connect(cfg config.InfluxDBConfig, logger *logging.Logger) (*Recorder, error) {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if _, err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging influxdb: %w", err)
	}

	r := &Recorder{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:       cfg,
		logger:    logger,
		connected: true,
	}

	// Async write failures surface here, not on the request path.
	errCh := r.writeAPI.Errors()
	go func() {
		for err := range errCh {
			logger.Warn("apply-history write failed", "error", err)
		}
	}()

	return r, nil
}

// RecordApply writes one point per applied change set.
func (r *Recorder) RecordApply(tenantID string, changeCount int, duration time.Duration) {
	if !r.IsConnected() {
		return
	}
	point := write.NewPoint(
		"changeset_apply",
		map[string]string{
			"tenant_id": tenantID,
		},
		map[string]interface{}{
			"change_count": changeCount,
			"duration_ms":  float64(duration.Microseconds()) / millisecondsPerSecond,
		},
		time.Now(),
	)
	r.writeAPI.WritePoint(point)
}

// IsConnected reports whether the recorder holds a live client.
func (r *Recorder) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// Close flushes pending points and shuts the client down.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.connected = false
	r.mu.Unlock()

	r.writeAPI.Flush()
	r.client.Close()
}
