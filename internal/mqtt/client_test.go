// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package mqtt

import (
	"log/slog"
	"os"
	"testing"

	"hatd/internal/api"
	"hatd/internal/config"
	"hatd/internal/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient() *Client {
	state := ports.NewState(testLogger())
	cfg := &config.MQTTConfig{Broker: "tcp://127.0.0.1:1883", ClientID: "hatd-test", TopicPrefix: "home/hatd"}
	return NewClient(cfg, state, api.NewHandler(state, nil), testLogger())
}

func TestTopics(t *testing.T) {
	c := newTestClient()

	tests := map[string]string{
		TopicCmd:      "home/hatd/cmd",
		TopicResponse: "home/hatd/response",
		TopicEvent:    "home/hatd/event",
		TopicStatus:   "home/hatd/status",
		TopicOnline:   "home/hatd/online",
	}
	for suffix, want := range tests {
		if got := c.Topic(suffix); got != want {
			t.Errorf("Topic(%q) = %q, want %q", suffix, got, want)
		}
	}
}

func TestNotConnectedBeforeStart(t *testing.T) {
	c := newTestClient()
	if c.Connected() {
		t.Error("expected disconnected before Start")
	}

	// publishing without a connection is a no-op
	c.publishEvent([]byte(`{}`))
	c.publishStatus([]byte(`{}`))

	c.Stop()
	c.Stop()
}
