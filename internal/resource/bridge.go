package resource

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sagebionetworks/bridgesdk/internal/bridge"
	"github.com/sagebionetworks/bridgesdk/internal/model"
)

// AppConfigIdentifier keys the single app config row.
const AppConfigIdentifier = "self"

var ErrUnknownType = errors.New("resource: unknown resource type")

// AppConfig is the subset of the Bridge app config the client reads.
type AppConfig struct {
	Label            string            `json:"label"`
	CreatedOn        *time.Time        `json:"createdOn,omitempty"`
	ModifiedOn       *time.Time        `json:"modifiedOn,omitempty"`
	ClientData       map[string]any    `json:"clientData,omitempty"`
	SurveyReferences []SurveyReference `json:"surveyReferences,omitempty"`
	ConfigElements   map[string]any    `json:"configElements,omitempty"`
}

type SurveyReference struct {
	GUID       string     `json:"guid"`
	Identifier string     `json:"identifier,omitempty"`
	CreatedOn  *time.Time `json:"createdOn,omitempty"`
}

type Survey struct {
	GUID       string               `json:"guid"`
	Identifier string               `json:"identifier"`
	Name       string               `json:"name"`
	CreatedOn  time.Time            `json:"createdOn"`
	Published  bool                 `json:"published"`
	Elements   []stdjson.RawMessage `json:"elements"`
}

// SurveyIdentifier keys one survey revision in the cache.
func SurveyIdentifier(guid string, createdOn time.Time) string {
	return guid + "@" + createdOn.UTC().Format(time.RFC3339Nano)
}

func parseSurveyIdentifier(identifier string) (string, time.Time, error) {
	guid, raw, ok := strings.Cut(identifier, "@")
	if !ok || guid == "" {
		return "", time.Time{}, fmt.Errorf("resource: bad survey key %q", identifier)
	}
	createdOn, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("resource: bad survey key %q: %w", identifier, err)
	}
	return guid, createdOn, nil
}

// BridgeFetcher loads app config and survey resources from a Bridge client.
func BridgeFetcher(client *bridge.Client) Fetcher {
	return FetcherFunc(func(ctx context.Context, identifier string, typ model.ResourceType) (stdjson.RawMessage, error) {
		switch typ {
		case model.ResourceTypeAppConfig:
			return client.GetAppConfig(ctx)
		case model.ResourceTypeSurvey:
			guid, createdOn, err := parseSurveyIdentifier(identifier)
			if err != nil {
				return nil, err
			}
			return client.GetSurvey(ctx, guid, createdOn)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
		}
	})
}

func (c *Cache) AppConfig(ctx context.Context) (AppConfig, error) {
	res, err := c.Get(ctx, AppConfigIdentifier, model.ResourceTypeAppConfig)
	if err != nil {
		return AppConfig{}, err
	}
	return Decode[AppConfig](res)
}

func (c *Cache) Survey(ctx context.Context, guid string, createdOn time.Time) (Survey, error) {
	res, err := c.Get(ctx, SurveyIdentifier(guid, createdOn), model.ResourceTypeSurvey)
	if err != nil {
		return Survey{}, err
	}
	return Decode[Survey](res)
}

// ClientDataSection decodes one named object from the app config client
// data into T.
func ClientDataSection[T any](cfg AppConfig, name string) (T, error) {
	var zero T
	raw, ok := cfg.ClientData[name]
	if !ok {
		return zero, fmt.Errorf("resource: app config has no client data section %q", name)
	}
	section, ok := raw.(map[string]any)
	if !ok {
		return zero, fmt.Errorf("resource: client data section %q is %T, not an object", name, raw)
	}
	return DecodeMap[T](section)
}
