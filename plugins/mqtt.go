package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofiber/fiber/v2"
)

// MQTTConfig describes the broker the transmit bridge connects to
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
}

// MQTTPlugin bridges an MQTT topic to the transmitter. JSON TxRequests
// published to <topic>/tx are sent and the outcome is published to
// <topic>/tx/result.
type MQTTPlugin struct {
	cfg     MQTTConfig
	station *Station
	client  mqtt.Client
	publish func(topic string, payload []byte) error

	received atomic.Uint64
	failed   atomic.Uint64
}

// NewMQTTPlugin connects to the broker. The connection re-establishes itself
// and the subscription is renewed on every reconnect.
func NewMQTTPlugin(cfg MQTTConfig, station *Station) (*MQTTPlugin, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("broker is required in mqtt plugin configuration")
	}
	if station == nil {
		return nil, fmt.Errorf("station cannot be nil")
	}
	if cfg.Topic == "" {
		cfg.Topic = "ismtx"
	}
	if cfg.ClientID == "" {
		hostname, _ := os.Hostname()
		cfg.ClientID = "ismtx-" + hostname
	}

	p := newMQTTBridge(cfg, station)

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker)
	opts.ClientID = cfg.ClientID
	opts.Username = cfg.Username
	opts.Password = cfg.Password
	opts.AutoReconnect = true
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("MQTT connection lost", "broker", cfg.Broker, "error", err)
	})

	p.client = mqtt.NewClient(opts)
	p.publish = func(topic string, payload []byte) error {
		token := p.client.Publish(topic, 1, false, payload)
		if !token.WaitTimeout(5 * time.Second) {
			return fmt.Errorf("publish to %s timed out", topic)
		}
		return token.Error()
	}

	if token := p.client.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %v", cfg.Broker, token.Error())
	}

	slog.Info("MQTT connected", "broker", cfg.Broker, "client_id", cfg.ClientID, "topic", cfg.Topic)
	return p, nil
}

func newMQTTBridge(cfg MQTTConfig, station *Station) *MQTTPlugin {
	return &MQTTPlugin{cfg: cfg, station: station}
}

func (p *MQTTPlugin) txTopic() string     { return p.cfg.Topic + "/tx" }
func (p *MQTTPlugin) resultTopic() string { return p.cfg.Topic + "/tx/result" }

func (p *MQTTPlugin) onConnect(c mqtt.Client) {
	token := c.Subscribe(p.txTopic(), 1, func(_ mqtt.Client, m mqtt.Message) {
		p.handleTx(m.Payload())
	})
	if !token.WaitTimeout(2*time.Second) || token.Error() != nil {
		slog.Error("MQTT subscribe failed", "topic", p.txTopic(), "error", token.Error())
		return
	}
	slog.Info("MQTT subscribed", "topic", p.txTopic())
}

// handleTx sends one request and publishes the APIResponse for it
func (p *MQTTPlugin) handleTx(payload []byte) {
	p.received.Add(1)

	var resp APIResponse
	var req TxRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		resp.Error = fmt.Sprintf("invalid request: %v", err)
	} else {
		t, err := p.station.Transmit(context.Background(), "mqtt", req)
		resp.Data = t
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}
	}
	if !resp.Success {
		p.failed.Add(1)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		slog.Error("Failed to encode MQTT result", "error", err)
		return
	}
	if err := p.publish(p.resultTopic(), out); err != nil {
		slog.Warn("Failed to publish MQTT result", "topic", p.resultTopic(), "error", err)
	}
}

// Name returns the plugin identifier
func (p *MQTTPlugin) Name() string {
	return "mqtt"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *MQTTPlugin) RegisterRoutes(app *fiber.App) {
	app.Get("/api/mqtt/status", p.handleStatus)
}

func (p *MQTTPlugin) handleStatus(c *fiber.Ctx) error {
	connected := p.client != nil && p.client.IsConnectionOpen()
	return SendSuccess(c, map[string]interface{}{
		"broker":       p.cfg.Broker,
		"connected":    connected,
		"tx_topic":     p.txTopic(),
		"result_topic": p.resultTopic(),
		"received":     p.received.Load(),
		"failed":       p.failed.Load(),
	}, "")
}

// Shutdown disconnects from the broker
func (p *MQTTPlugin) Shutdown() error {
	if p.client != nil {
		p.client.Disconnect(250)
	}
	return nil
}

// Register the plugin
func init() {
	Register("mqtt", func(config interface{}) (Plugin, error) {
		configMap, ok := config.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid config for mqtt plugin")
		}
		cfg, _ := configMap["config"].(MQTTConfig)
		station, _ := configMap["station"].(*Station)
		return NewMQTTPlugin(cfg, station)
	})
}
