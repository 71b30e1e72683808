package resource

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"

	"github.com/sagebionetworks/bridgesdk/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Decode unmarshals the resource blob into T.
func Decode[T any](res model.Resource) (T, error) {
	var out T
	if err := json.Unmarshal(res.JSON, &out); err != nil {
		return out, fmt.Errorf("resource: decode %s/%s: %w", res.Type, res.Identifier, err)
	}
	return out, nil
}

// DecodeMap converts a loosely typed JSON object, such as an app config
// client data section, into T using its json tags.
func DecodeMap[T any](in map[string]any) (T, error) {
	var out T
	cfg := &mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05Z07:00"),
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(in); err != nil {
		return out, fmt.Errorf("resource: decode map: %w", err)
	}
	return out, nil
}
