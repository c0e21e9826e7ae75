package model

import (
	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

// Alias per esporre tipi comuni ai servizi

type (
	Reading       = messages.Reading
	Alert         = messages.Alert
	ZoneSummary   = messages.ZoneSummary
	EntityCommand = messages.EntityCommand
	Entity        = entities.Entity
	EntityClass   = entities.EntityClass
	Coordinates   = entities.Coordinates
)

const (
	HazardNone     = messages.HazardNone
	HazardWarning  = messages.HazardWarning
	HazardCritical = messages.HazardCritical
)
