package entity_simulator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
	"github.com/LeonardoBeccarini/citywatch/pkg/dedup"
	"github.com/LeonardoBeccarini/citywatch/pkg/rabbitmq"
	"github.com/LeonardoBeccarini/citywatch/pkg/settings"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var ErrUnknownAction = errors.New("unknown entity command action")

// EntitySimulator publishes the readings of a scheduler on MQTT and
// applies pause/resume commands coming from the control topic.
type EntitySimulator struct {
	scheduler *Scheduler
	publisher rabbitmq.IPublisher
	consumer  rabbitmq.IConsumer[mqtt.Message]
	deduper   *dedup.Deduper
}

func NewEntitySimulator(consumer rabbitmq.IConsumer[mqtt.Message], publisher rabbitmq.IPublisher,
	scheduler *Scheduler) *EntitySimulator {
	s := &EntitySimulator{
		scheduler: scheduler,
		publisher: publisher,
		consumer:  consumer,
		deduper:   dedup.New(2*time.Minute, 10000), // TTL e cap
	}
	if publisher != nil {
		scheduler.OnReading(s.publish)
	}
	return s
}

func (s *EntitySimulator) Scheduler() *Scheduler { return s.scheduler }

// FollowSettings keeps the global pause in sync with the settings store.
func (s *EntitySimulator) FollowSettings(store *settings.Store) (cancel func()) {
	return store.Subscribe(func(v settings.Settings) {
		s.scheduler.SetPaused(v.SimulationPaused)
	})
}

func (s *EntitySimulator) publish(class entities.EntityClass, r messages.Reading) {
	topic := fmt.Sprintf(rabbitmq.TopicReadingFmt, class, r.EntityID)
	if err := s.publisher.PublishTo(topic, r); err != nil {
		log.Printf("sim: publish error for %s: %v", r.EntityID, err)
	}
}

// Start avvia il consumer dei comandi e il loop dello scheduler; blocca fino a ctx.Done().
func (s *EntitySimulator) Start(ctx context.Context) {
	if s.consumer != nil {
		s.consumer.SetHandler(s.handleMessage)
		go s.consumer.ConsumeMessage(ctx)
	}

	log.Printf("sim: running %d entities", s.scheduler.Len())
	s.scheduler.Run(ctx)

	if s.publisher != nil {
		s.publisher.Close()
	}
}

func (s *EntitySimulator) handleMessage(_ string, msg mqtt.Message) error {
	// Dedup a payload: redelivery QoS1 ha lo stesso payload → stesso hash
	h := sha256.Sum256(msg.Payload())
	if !s.deduper.ShouldProcess(hex.EncodeToString(h[:])) {
		return nil
	}

	var cmd messages.EntityCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		return fmt.Errorf("invalid EntityCommand: %w", err)
	}
	return s.Apply(cmd)
}

// Apply executes one command. Commands for entities this simulator does
// not own are ignored.
func (s *EntitySimulator) Apply(cmd messages.EntityCommand) error {
	if !s.scheduler.Has(cmd.EntityID) {
		return nil
	}
	switch cmd.Action {
	case messages.ActionPause:
		s.scheduler.Pause(cmd.EntityID, cmd.Duration)
		if cmd.Duration > 0 {
			log.Printf("sim: %s paused for %s", cmd.EntityID, cmd.Duration)
		} else {
			log.Printf("sim: %s paused", cmd.EntityID)
		}
	case messages.ActionResume:
		s.scheduler.Resume(cmd.EntityID)
		log.Printf("sim: %s resumed", cmd.EntityID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
	return nil
}
