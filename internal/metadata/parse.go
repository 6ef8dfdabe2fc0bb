package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"nft-holdings/internal/domain"
)

// ErrNotObject is returned when a document is not a JSON object.
var ErrNotObject = errors.New("metadata is not a json object")

// Parse decodes a metadata document. Any JSON object is accepted: the
// well-known fields are picked out when their type matches and the whole
// document is kept in Raw.
func Parse(body []byte) (*domain.Metadata, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	md := &domain.Metadata{
		Name:         stringField(fields, "name"),
		Description:  stringField(fields, "description"),
		Image:        stringField(fields, "image"),
		ExternalURL:  stringField(fields, "external_url"),
		AnimationURL: stringField(fields, "animation_url"),
		Attributes:   attributes(fields["attributes"]),
		Raw:          append(json.RawMessage(nil), trimmed...),
	}
	if md.Image == "" {
		md.Image = stringField(fields, "image_url")
	}
	return md, nil
}

// stringField returns fields[key] if it holds a JSON string, else "".
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// attributes decodes an attribute array, skipping entries that are not
// objects. A non-array value yields no attributes.
func attributes(raw json.RawMessage) []domain.Attribute {
	var entries []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &entries) != nil {
		return nil
	}

	var out []domain.Attribute
	for _, entry := range entries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil || fields == nil {
			continue
		}
		attr := domain.Attribute{
			TraitType:   stringField(fields, "trait_type"),
			DisplayType: stringField(fields, "display_type"),
		}
		if v, ok := fields["value"]; ok {
			if err := json.Unmarshal(v, &attr.Value); err != nil {
				continue
			}
		}
		out = append(out, attr)
	}
	return out
}
