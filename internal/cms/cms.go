// Package cms defines the page builder entities the admin layer edits.
package cms

import (
	"strconv"
	"strings"
	"time"

	"cascade/internal/glossary"
)

type Site struct {
	ID     int64  `json:"id"`
	Domain string `json:"domain"`
	Name   string `json:"name"`
}

type Page struct {
	ID       int64         `json:"id"`
	SiteID   int64         `json:"site_id"`
	Title    string        `json:"title"`
	Path     string        `json:"path"`
	IsDraft  bool          `json:"is_draft"`
	Glossary glossary.Page `json:"glossary"`
}

// AbsoluteURL returns the site-relative URL the page is served under.
func (p Page) AbsoluteURL() string {
	path := strings.Trim(p.Path, "/")
	if path == "" {
		return "/"
	}
	return "/" + path + "/"
}

// PluginInstance is one plugin placed on a page. ID is zero until the instance is
// persisted and PageID is zero while it is not attached to a page.
type PluginInstance struct {
	ID         int64             `json:"id"`
	PageID     int64             `json:"page_id,omitempty"`
	PluginType string            `json:"plugin_type"`
	Position   int               `json:"position"`
	Glossary   glossary.Instance `json:"glossary"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Key is the key the instance is recorded under in the page's element_ids.
func (p PluginInstance) Key() string {
	return strconv.FormatInt(p.ID, 10)
}

func (p PluginInstance) HasPage() bool {
	return p.PageID != 0
}
