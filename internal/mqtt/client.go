// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package mqtt

import (
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"hatd/internal/api"
	"hatd/internal/config"
	"hatd/internal/ports"
)

// Topic suffixes below the configured prefix
const (
	TopicCmd      = "cmd"      // unified API requests
	TopicResponse = "response" // unified API responses
	TopicEvent    = "event"    // state changes
	TopicStatus   = "status"   // retained full state
	TopicOnline   = "online"   // retained "true"/"false", last will
)

// Client is the MQTT client. A connected broker counts as a controller.
type Client struct {
	cfg    *config.MQTTConfig
	api    *api.Handler
	state  *ports.State
	logger *slog.Logger
	client mqtt.Client

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewClient creates a new MQTT client
func NewClient(cfg *config.MQTTConfig, state *ports.State, handler *api.Handler, logger *slog.Logger) *Client {
	return &Client{
		cfg:      cfg,
		api:      handler,
		state:    state,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Topic returns the full topic for a suffix
func (c *Client) Topic(suffix string) string {
	return c.cfg.TopicPrefix + "/" + suffix
}

// Start connects to broker and subscribes to topics
func (c *Client) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.Broker)
	opts.SetClientID(c.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetWill(c.Topic(TopicOnline), "false", 1, true)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}

	go c.forwardEvents()

	c.logger.Info("MQTT client started", "broker", c.cfg.Broker, "client_id", c.cfg.ClientID, "prefix", c.cfg.TopicPrefix)
	return nil
}

// Stop disconnects from broker
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	if c.client != nil && c.client.IsConnected() {
		c.client.Publish(c.Topic(TopicOnline), 1, true, "false").WaitTimeout(time.Second)
		c.client.Disconnect(1000)
	}
	c.logger.Info("MQTT client stopped")
}

// Connected reports whether the broker connection is up
func (c *Client) Connected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("MQTT connected")

	cmdTopic := c.Topic(TopicCmd)
	client.Subscribe(cmdTopic, 1, c.handleCommand)
	c.logger.Debug("MQTT subscribed", "topic", cmdTopic)

	client.Publish(c.Topic(TopicOnline), 1, true, "true")
	c.publishStatus(c.state.Message("status"))
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Warn("MQTT connection lost", "error", err)
}

// handleCommand processes incoming MQTT commands
func (c *Client) handleCommand(client mqtt.Client, msg mqtt.Message) {
	c.logger.Debug("MQTT command received", "topic", msg.Topic(), "payload", string(msg.Payload()))
	client.Publish(c.Topic(TopicResponse), 0, false, c.api.HandleJSON(msg.Payload()))
}

// forwardEvents forwards port state changes to MQTT
func (c *Client) forwardEvents() {
	updates := c.state.Subscribe()
	defer c.state.Unsubscribe(updates)

	for {
		select {
		case data, ok := <-updates:
			if !ok {
				return
			}
			c.publishEvent(data)
			c.publishStatus(data)
		case <-c.stopChan:
			return
		}
	}
}

// publishEvent publishes a state change event (data is pre-marshaled JSON)
func (c *Client) publishEvent(data []byte) {
	if !c.Connected() {
		return
	}
	c.client.Publish(c.Topic(TopicEvent), 0, false, data)
}

// publishStatus publishes the full state as a retained message
func (c *Client) publishStatus(data []byte) {
	if !c.Connected() {
		return
	}
	c.client.Publish(c.Topic(TopicStatus), 0, true, data)
}
