package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/citywatch/pkg/rabbitmq/mqtttest"
)

func TestPublishToEncodesPayloads(t *testing.T) {
	t.Parallel()

	client := mqtttest.NewClient()
	p := NewPublisher(client, "city/zones/Cheras")
	p.Quiet = true

	if err := p.PublishMessage("raw"); err != nil {
		t.Fatalf("PublishMessage: %v", err)
	}
	if err := p.PublishTo("city/alerts/critical", map[string]string{"message": "FLOOD WARNING"}); err != nil {
		t.Fatalf("PublishTo: %v", err)
	}

	got := client.Published()
	if len(got) != 2 {
		t.Fatalf("published %d messages, want 2", len(got))
	}
	if got[0].Topic != "city/zones/Cheras" || string(got[0].Payload) != "raw" || got[0].QoS != 0 {
		t.Fatalf("unexpected first publish %+v", got[0])
	}
	var body map[string]string
	if err := json.Unmarshal(got[1].Payload, &body); err != nil || body["message"] != "FLOOD WARNING" {
		t.Fatalf("alert payload not JSON-encoded: %s (%v)", got[1].Payload, err)
	}
	if got[1].QoS != 1 {
		t.Fatalf("alerts must use QoS1, got %d", got[1].QoS)
	}
}

func TestPublishToErrors(t *testing.T) {
	t.Parallel()

	client := mqtttest.NewClient()
	p := NewPublisher(client, "")
	p.Quiet = true
	if err := p.PublishMessage("x"); err == nil {
		t.Fatal("expected error for empty topic")
	}

	client.PubErr = errors.New("broker gone")
	if err := p.PublishTo("city/readings/bin/b1", "x"); err == nil {
		t.Fatal("expected broker error to surface")
	}
}

func TestMultiConsumerDispatches(t *testing.T) {
	t.Parallel()

	client := mqtttest.NewClient()
	got := make(chan string, 4)
	c := NewMultiConsumer(client, []string{"city/readings/#", "city/control/entity"}, nil)
	c.SetHandler(func(_ string, m mqtt.Message) error {
		got <- m.Topic()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.ConsumeMessage(ctx)

	deadline := time.Now().Add(time.Second)
	for !client.Subscribed("city/control/entity") {
		if time.Now().After(deadline) {
			t.Fatal("consumer never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	client.Publish("city/readings/bin/b1", 0, false, []byte("{}"))
	client.Publish("city/other", 0, false, []byte("{}"))

	select {
	case topic := <-got:
		if topic != "city/readings/bin/b1" {
			t.Fatalf("handler got topic %q", topic)
		}
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
	select {
	case topic := <-got:
		t.Fatalf("unexpected delivery on %q", topic)
	default:
	}
}

func TestTopicMatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"city/readings/#", "city/readings/bin/b1", true},
		{"city/readings/+/b1", "city/readings/bin/b1", true},
		{"city/readings/+", "city/readings/bin/b1", false},
		{"city/alerts/critical", "city/alerts/warning", false},
	}
	for _, tc := range cases {
		if got := mqtttest.Match(tc.filter, tc.topic); got != tc.want {
			t.Errorf("Match(%q,%q) = %v, want %v", tc.filter, tc.topic, got, tc.want)
		}
	}
}
