package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
	msg "github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

const (
	readingsPrefix = "city/readings/"
	alertsPrefix   = "city/alerts/"
	zonesPrefix    = "city/zones/"
)

// MQTTHandler trasforma i messaggi MQTT in letture, alert e zone e li passa ai sink.
// A nil sink drops that kind of message.
type MQTTHandler struct {
	OnReading func(class entities.EntityClass, r msg.Reading)
	OnAlert   func(a msg.Alert)
	OnZone    func(z msg.ZoneSummary)
}

func (h *MQTTHandler) Handle(_ string, m mqtt.Message) error {
	topic := m.Topic()
	payload := m.Payload()

	switch {
	case strings.HasPrefix(topic, readingsPrefix):
		if h.OnReading == nil {
			return nil
		}
		class, r, err := DecodeReading(topic, payload)
		if err != nil {
			return err
		}
		h.OnReading(class, r)
	case strings.HasPrefix(topic, alertsPrefix):
		if h.OnAlert == nil {
			return nil
		}
		a, err := DecodeAlert(topic, payload)
		if err != nil {
			return err
		}
		h.OnAlert(a)
	case strings.HasPrefix(topic, zonesPrefix):
		if h.OnZone == nil {
			return nil
		}
		var z msg.ZoneSummary
		if err := json.Unmarshal(payload, &z); err != nil {
			return fmt.Errorf("zone: %w", err)
		}
		if z.Location == "" {
			z.Location = strings.TrimPrefix(topic, zonesPrefix)
		}
		h.OnZone(z)
	}
	// altri topic ignorati
	return nil
}

// DecodeReading parses a reading published on city/readings/{class}/{entity}.
// A payload without entity_id takes it from the topic.
func DecodeReading(topic string, payload []byte) (entities.EntityClass, msg.Reading, error) {
	var r msg.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return "", msg.Reading{}, fmt.Errorf("reading: %w", err)
	}
	class, entityID := pickIDs(topic, r.EntityID, readingsPrefix)
	r.EntityID = entityID
	if r.Source == "" {
		r.Source = "mqtt"
	}
	if err := r.Validate(); err != nil {
		return "", msg.Reading{}, fmt.Errorf("reading on %s: %w", topic, err)
	}
	return entities.EntityClass(class), r, nil
}

func DecodeAlert(topic string, payload []byte) (msg.Alert, error) {
	var a msg.Alert
	if err := json.Unmarshal(payload, &a); err != nil {
		return msg.Alert{}, fmt.Errorf("alert: %w", err)
	}
	if a.Severity == "" {
		a.Severity = msg.Severity(strings.TrimPrefix(topic, alertsPrefix))
	}
	if !a.Severity.Valid() {
		return msg.Alert{}, fmt.Errorf("alert: unknown severity %q", a.Severity)
	}
	if a.Message == "" {
		return msg.Alert{}, errors.New("alert: empty message")
	}
	return a, nil
}

// pickIDs usa il payload, oppure il topic "prefix/{class}/{entity}".
func pickIDs(topic, entityID, prefix string) (string, string) {
	parts := strings.Split(strings.TrimPrefix(topic, prefix), "/")
	class := ""
	if len(parts) >= 1 {
		class = parts[0]
	}
	if strings.TrimSpace(entityID) == "" && len(parts) >= 2 {
		entityID = parts[1]
	}
	return class, entityID
}
