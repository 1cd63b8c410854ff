package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/heater-controller/internal/model"
)

type Config struct {
	Broker              string `json:"broker"`
	ClientID            string `json:"client_id"`
	Username            string `json:"username"`
	Password            string `json:"password"`
	SensorTopic         string `json:"sensor_topic"`
	HeaterTopic         string `json:"heater_topic"`
	AlertTopic          string `json:"alert_topic"`
	RecommendationTopic string `json:"recommendation_topic"`
}

// Handlers receive inbound messages. They run on the paho callback goroutine and
// must not block.
type Handlers struct {
	OnReading    func(model.SensorReading)
	OnHeaterEcho func(cmd model.Command, source string)
}

// Client publishes heater commands, alerts and recommendations and delivers sensor
// readings and heater echoes to its handlers.
type Client struct {
	client paho.Client
	cfg    Config
	h      Handlers

	mu sync.Mutex
}

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// NewClient prepares a client without dialing. Publishing fails until Connect succeeds.
func NewClient(cfg Config) *Client {
	c := &Client{cfg: cfg}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.subscribe).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = paho.NewClient(opts)
	return c
}

// Connect dials the broker and starts delivering messages to h. Subscriptions are
// (re)established on every connect so they survive broker restarts.
func (c *Client) Connect(h Handlers) error {
	c.h = h

	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}

	log.Info().
		Str("broker", c.cfg.Broker).
		Str("client_id", c.cfg.ClientID).
		Msg("MQTT connected")
	return nil
}

func (c *Client) subscribe(pc paho.Client) {
	subs := map[string]paho.MessageHandler{
		c.cfg.SensorTopic: c.handleSensor,
		c.cfg.HeaterTopic: c.handleHeater,
	}
	for topic, handler := range subs {
		token := pc.Subscribe(topic, 0, handler)
		if !token.WaitTimeout(connectTimeout) {
			log.Error().Str("topic", topic).Msg("MQTT subscribe timeout")
			continue
		}
		if err := token.Error(); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("MQTT subscribe failed")
			continue
		}
		log.Info().Str("topic", topic).Msg("MQTT subscribed")
	}
}

func (c *Client) handleSensor(_ paho.Client, msg paho.Message) {
	reading, err := ParseReading(msg.Payload(), time.Now())
	if err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Dropping sensor payload")
		return
	}
	if c.h.OnReading != nil {
		c.h.OnReading(reading)
	}
}

func (c *Client) handleHeater(_ paho.Client, msg paho.Message) {
	cmd, source, err := ParseHeaterEcho(msg.Payload())
	if err != nil {
		log.Warn().Err(err).Msg("Heater payload not understood")
		return
	}
	if c.h.OnHeaterEcho != nil {
		c.h.OnHeaterEcho(cmd, source)
	}
}

// PublishCommand sends a heater command at QoS 1.
func (c *Client) PublishCommand(cmd model.Command, reason string) error {
	payload, err := FormatCommand(cmd, "server", reason)
	if err != nil {
		return fmt.Errorf("format command: %w", err)
	}
	return c.publish(c.cfg.HeaterTopic, 1, payload)
}

// Send publishes a notification to the alert topic for the web UI.
func (c *Client) Send(title, message string) error {
	if c.cfg.AlertTopic == "" {
		return nil
	}
	payload, err := FormatAlert(title, message)
	if err != nil {
		return fmt.Errorf("format alert: %w", err)
	}
	return c.publish(c.cfg.AlertTopic, 0, payload)
}

// PublishRecommendation is a no-op unless a recommendation topic is configured.
func (c *Client) PublishRecommendation(r Recommendation) error {
	if c.cfg.RecommendationTopic == "" {
		return nil
	}
	payload, err := FormatRecommendation(r)
	if err != nil {
		return fmt.Errorf("format recommendation: %w", err)
	}
	return c.publish(c.cfg.RecommendationTopic, 0, payload)
}

func (c *Client) publish(topic string, qos byte, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	c.client.Disconnect(1000)
	return nil
}
