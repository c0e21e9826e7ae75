package rabbitmq

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher publishes to a default topic or to an explicit one.
type IPublisher interface {
	PublishMessage(message interface{}) error
	PublishTo(topic string, message interface{}) error
	Close()
}

// Publisher holds the shared client and its default topic.
type Publisher struct {
	client mqtt.Client
	topic  string
	Quiet  bool // skip the per-message log line (high-rate topics)
}

func NewPublisher(client mqtt.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

func (p *Publisher) PublishMessage(message interface{}) error {
	return p.PublishTo(p.topic, message)
}

// PublishTo accepts a string, a []byte or any JSON-marshalable value.
func (p *Publisher) PublishTo(topic string, message interface{}) error {
	if topic == "" {
		return fmt.Errorf("publish: empty topic")
	}
	var payload []byte
	switch m := message.(type) {
	case string:
		payload = []byte(m)
	case []byte:
		payload = m
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("publish: marshal %T: %w", message, err)
		}
		payload = b
	}

	token := p.client.Publish(topic, qosFor(topic), false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish message on %s: %w", topic, token.Error())
	}

	if !p.Quiet {
		log.Printf("mqtt: published %d bytes to %s", len(payload), topic)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		log.Println("mqtt: publisher disconnected")
	}
}
