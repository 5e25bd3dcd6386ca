package glossary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Page is the glossary attached to a page. ElementIDs maps a plugin instance key
// to the element id assigned to that instance.
type Page struct {
	ElementIDs map[string]string
	Extra      map[string]json.RawMessage
}

func ParsePage(b []byte) (Page, error) {
	var p Page
	if len(bytes.TrimSpace(b)) == 0 || bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return p, nil
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return Page{}, err
	}
	return p, nil
}

func (p *Page) SetElementID(key, elementID string) {
	if p.ElementIDs == nil {
		p.ElementIDs = map[string]string{}
	}
	p.ElementIDs[key] = elementID
}

// RemoveElementID deletes the entry for key and reports whether it existed.
func (p *Page) RemoveElementID(key string) bool {
	if _, ok := p.ElementIDs[key]; !ok {
		return false
	}
	delete(p.ElementIDs, key)
	return true
}

// ElementIDKeys returns the instance keys in ascending order.
func (p Page) ElementIDKeys() []string {
	keys := make([]string, 0, len(p.ElementIDs))
	for k := range p.ElementIDs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p Page) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Extra)+1)
	for k, v := range p.Extra {
		m[k] = v
	}
	if p.ElementIDs != nil {
		m[keyElementIDs] = p.ElementIDs
	}
	return json.Marshal(m)
}

func (p *Page) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("page glossary: %w", err)
	}
	*p = Page{}
	for k, v := range raw {
		if k == keyElementIDs {
			if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				continue
			}
			if err := json.Unmarshal(v, &p.ElementIDs); err != nil {
				return fmt.Errorf("page glossary: %s: %w", k, err)
			}
			continue
		}
		if p.Extra == nil {
			p.Extra = map[string]json.RawMessage{}
		}
		p.Extra[k] = v
	}
	return nil
}
