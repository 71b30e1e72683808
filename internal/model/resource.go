package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type ResourceType string

const (
	ResourceTypeAppConfig ResourceType = "app_config"
	ResourceTypeSurvey    ResourceType = "survey"
)

// Resource is a generic cache row: an opaque JSON blob keyed by identifier
// and type, stamped with its last update.
type Resource struct {
	Identifier string
	Type       ResourceType
	JSON       json.RawMessage
	UpdatedAt  time.Time
}

func (r Resource) Validate() error {
	if strings.TrimSpace(r.Identifier) == "" {
		return errors.New("model: resource identifier is required")
	}
	if strings.TrimSpace(string(r.Type)) == "" {
		return errors.New("model: resource type is required")
	}
	if !json.Valid(r.JSON) {
		return errors.New("model: resource json is not valid")
	}
	return nil
}

func (r Resource) IsFresh(now time.Time, ttl time.Duration) bool {
	if r.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(r.UpdatedAt) < ttl
}
