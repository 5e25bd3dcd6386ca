// Package glossary holds the typed settings documents stored as JSON on pages and
// plugin instances.
package glossary

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	keyElementID   = "element_id"
	keyLink        = "link"
	keyLinkContent = "link_content"
	keyElementIDs  = "element_ids"
)

// Instance is the glossary of one plugin instance. Keys this package does not model
// are kept in Extra and written back untouched.
type Instance struct {
	ElementID   string
	Link        *Link
	LinkContent string
	Extra       map[string]json.RawMessage
}

func ParseInstance(b []byte) (Instance, error) {
	var g Instance
	if len(bytes.TrimSpace(b)) == 0 || bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return g, nil
	}
	if err := json.Unmarshal(b, &g); err != nil {
		return Instance{}, err
	}
	return g, nil
}

func (g Instance) Clone() Instance {
	out := g
	if g.Link != nil {
		l := *g.Link
		if g.Link.PK != nil {
			pk := *g.Link.PK
			l.PK = &pk
		}
		out.Link = &l
	}
	if g.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(g.Extra))
		for k, v := range g.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// String returns the extra key as a string, or "" when it is absent or not a string.
func (g Instance) String(key string) string {
	v, ok := g.Extra[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

func (g *Instance) SetString(key, value string) {
	if g.Extra == nil {
		g.Extra = map[string]json.RawMessage{}
	}
	b, _ := json.Marshal(value)
	g.Extra[key] = b
}

func (g Instance) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(g.Extra)+3)
	for k, v := range g.Extra {
		m[k] = v
	}
	if g.ElementID != "" {
		m[keyElementID] = g.ElementID
	}
	if g.Link != nil {
		m[keyLink] = g.Link
	}
	if g.LinkContent != "" {
		m[keyLinkContent] = g.LinkContent
	}
	return json.Marshal(m)
}

func (g *Instance) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("glossary: %w", err)
	}
	*g = Instance{}
	for k, v := range raw {
		switch k {
		case keyElementID:
			if err := decodeOptionalString(v, &g.ElementID); err != nil {
				return fmt.Errorf("glossary: %s: %w", k, err)
			}
		case keyLinkContent:
			if err := decodeOptionalString(v, &g.LinkContent); err != nil {
				return fmt.Errorf("glossary: %s: %w", k, err)
			}
		case keyLink:
			var l Link
			if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				continue
			}
			if err := json.Unmarshal(v, &l); err != nil {
				// a link that is not an object reads as no link at all
				continue
			}
			g.Link = &l
		default:
			if g.Extra == nil {
				g.Extra = map[string]json.RawMessage{}
			}
			g.Extra[k] = v
		}
	}
	return nil
}

func decodeOptionalString(v json.RawMessage, dst *string) error {
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		*dst = ""
		return nil
	}
	return json.Unmarshal(v, dst)
}
