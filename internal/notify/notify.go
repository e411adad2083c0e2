// Package notify publishes applied change notifications to an MQTT broker.
//
// The broker is optional infrastructure: when disabled or unreachable, the
// gateway runs without it and applies are unaffected. Notifications are
// fire-and-forget fan-out for external consumers; the authoritative change
// feed is the store's change log.
package notify

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/syncgate/internal/infrastructure/config"
	"github.com/nerrad567/syncgate/internal/infrastructure/logging"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Notifier publishes change notifications on per-tenant topics.
type Notifier struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	logger *logging.Logger

	connected bool
	mu        sync.RWMutex
}

// Notification is the published payload.
type Notification struct {
	TenantID    string `json:"tenant_id"`
	ChangeCount int    `json:"change_count"`
	Until       string `json:"until"`
	AppliedAt   string `json:"applied_at"`
}

// Connect establishes the broker connection. Auto-reconnect is left to the
// paho client; a notifier that loses its broker drops notifications until
// the connection returns.
func Connect(cfg config.MQTTConfig, logger *logging.Logger) (*Notifier, error) {
	n := &Notifier{cfg: cfg, logger: logger}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			n.setConnected(true)
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			n.setConnected(false)
			logger.Warn("change notifier lost broker connection", "error", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	n.client = pahomqtt.NewClient(opts)
	token := n.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connecting to broker: timeout after %v", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	n.setConnected(true)
	return n, nil
}

// Publish sends a notification for the tenant's applied change set.
// Errors are logged, not returned: the apply already committed.
func (n *Notifier) Publish(tenantID string, changeCount int, until string) {
	if !n.IsConnected() {
		return
	}
	payload, err := json.Marshal(Notification{
		TenantID:    tenantID,
		ChangeCount: changeCount,
		Until:       until,
		AppliedAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		n.logger.Error("encoding change notification", "error", err)
		return
	}

	topic := fmt.Sprintf("%s/%s/changes", n.cfg.TopicPrefix, tenantID)
	token := n.client.Publish(topic, byte(n.cfg.QoS), false, payload)
	if !token.WaitTimeout(publishTimeout) {
		n.logger.Warn("change notification publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		n.logger.Error("publishing change notification", "topic", topic, "error", err)
	}
}

// IsConnected reports the current broker connection state.
func (n *Notifier) IsConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

func (n *Notifier) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}

// Close disconnects from the broker, allowing in-flight publishes to finish.
func (n *Notifier) Close() {
	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(uint(publishTimeout.Milliseconds()))
	}
	n.setConnected(false)
}
