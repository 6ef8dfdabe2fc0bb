package domain

import "encoding/json"

// Metadata is the off-chain JSON document a token URI points to.
type Metadata struct {
	Name         string          `json:"name,omitempty"`
	Description  string          `json:"description,omitempty"`
	Image        string          `json:"image,omitempty"`
	ExternalURL  string          `json:"external_url,omitempty"`
	AnimationURL string          `json:"animation_url,omitempty"`
	Attributes   []Attribute     `json:"attributes,omitempty"`
	Raw          json.RawMessage `json:"-"` // full document as fetched
}

// Attribute is one trait entry. Value is a string or a number.
type Attribute struct {
	TraitType   string `json:"trait_type,omitempty"`
	DisplayType string `json:"display_type,omitempty"`
	Value       any    `json:"value"`
}

// Clone returns a deep copy of the slices held by m.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Attributes != nil {
		out.Attributes = append([]Attribute(nil), m.Attributes...)
	}
	if m.Raw != nil {
		out.Raw = append(json.RawMessage(nil), m.Raw...)
	}
	return out
}
