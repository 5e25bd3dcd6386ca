package glossary

import (
	"encoding/json"
	"strconv"
	"strings"
)

// LinkKind tags the active variant of a Link.
type LinkKind string

const (
	LinkNone    LinkKind = "none"
	LinkCMSPage LinkKind = "cmspage"
	LinkExtURL  LinkKind = "exturl"
	LinkEmail   LinkKind = "email"
)

// PageModel is the model name recorded on links onto CMS pages.
const PageModel = "cms.Page"

// Link is the canonical hyperlink value stored under the instance glossary key "link".
// Only the fields belonging to Type are meaningful; the others are never encoded.
type Link struct {
	Type  LinkKind
	Model string
	PK    *int64
	URL   string
	Email string
}

func NoLink() *Link {
	return &Link{Type: LinkNone}
}

func PageLink(pk int64) *Link {
	return &Link{Type: LinkCMSPage, Model: PageModel, PK: &pk}
}

func ExternalLink(url string) *Link {
	return &Link{Type: LinkExtURL, URL: url}
}

func EmailLink(email string) *Link {
	return &Link{Type: LinkEmail, Email: email}
}

// Kind returns the link type, treating an empty tag as none.
func (l *Link) Kind() LinkKind {
	if l == nil || l.Type == "" {
		return LinkNone
	}
	return l.Type
}

func (l Link) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": l.Kind()}
	switch l.Kind() {
	case LinkCMSPage:
		if l.PK != nil {
			if l.Model != "" {
				m["model"] = l.Model
			}
			m["pk"] = *l.PK
		}
	case LinkExtURL:
		m["url"] = l.URL
	case LinkEmail:
		m["email"] = l.Email
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts any JSON object. Payload keys with an unexpected shape are
// dropped rather than reported, so stale documents still load.
func (l *Link) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*l = Link{}
	var kind string
	if v, ok := raw["type"]; ok {
		_ = json.Unmarshal(v, &kind)
	}
	l.Type = LinkKind(kind)
	if v, ok := raw["model"]; ok {
		_ = json.Unmarshal(v, &l.Model)
	}
	if v, ok := raw["pk"]; ok {
		l.PK = decodePK(v)
	}
	if v, ok := raw["url"]; ok {
		_ = json.Unmarshal(v, &l.URL)
	}
	if v, ok := raw["email"]; ok {
		_ = json.Unmarshal(v, &l.Email)
	}
	return nil
}

func decodePK(v json.RawMessage) *int64 {
	var n int64
	if err := json.Unmarshal(v, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
