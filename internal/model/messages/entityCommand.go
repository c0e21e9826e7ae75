package messages

import (
	"encoding/json"
	"fmt"
	"time"
)

type CommandAction string

const (
	ActionPause  CommandAction = "pause"
	ActionResume CommandAction = "resume"
)

// EntityCommand asks the simulator to pause or resume one entity.
// A pause with Duration > 0 reverts by itself.
type EntityCommand struct {
	EntityID  string        `json:"entity_id"`
	Action    CommandAction `json:"action"`
	Duration  time.Duration `json:"-"`
	Timestamp time.Time     `json:"timestamp"`
}

// durations travel as strings ("30s") on the wire
type entityCommandJSON struct {
	EntityID  string        `json:"entity_id"`
	Action    CommandAction `json:"action"`
	Duration  string        `json:"duration,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func (c EntityCommand) MarshalJSON() ([]byte, error) {
	out := entityCommandJSON{EntityID: c.EntityID, Action: c.Action, Timestamp: c.Timestamp}
	if c.Duration > 0 {
		out.Duration = c.Duration.String()
	}
	return json.Marshal(out)
}

func (c *EntityCommand) UnmarshalJSON(b []byte) error {
	var in entityCommandJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	c.EntityID, c.Action, c.Timestamp = in.EntityID, in.Action, in.Timestamp
	c.Duration = 0
	if in.Duration != "" {
		d, err := time.ParseDuration(in.Duration)
		if err != nil {
			return fmt.Errorf("entity command duration: %w", err)
		}
		c.Duration = d
	}
	return nil
}
