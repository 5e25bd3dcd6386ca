// Package plugin describes the plugin types editors can place on a page and builds
// the change form for an instance of one.
package plugin

import (
	"html/template"
	"sort"

	"cascade/internal/elementid"
	"cascade/internal/form"
	"cascade/internal/glossary"
	"cascade/internal/link"
)

// Type is a plugin kind. GlossaryFields are plain text settings stored in the
// instance glossary under their field name.
type Type struct {
	Name           string
	DisplayName    string
	GlossaryFields []form.Field
	// ElementID adds the page unique "Element ID" field and badge.
	ElementID bool
	// Link adds the link selection fields.
	Link bool
	// LinkContent adds the link text field; only meaningful together with Link.
	LinkContent bool
	// SharableFields lists the glossary fields a shared glossary may supply.
	SharableFields []string
	LinkChoices    []form.Option
}

// Identifier is the label shown for an instance in the plugin tree.
func (t Type) Identifier(g glossary.Instance) template.HTML {
	if t.ElementID {
		return elementid.Identifier(t.DisplayName, g)
	}
	return template.HTML(template.HTMLEscapeString(t.DisplayName))
}

type Catalog struct {
	types map[string]Type
}

func NewCatalog(types ...Type) *Catalog {
	c := &Catalog{types: map[string]Type{}}
	for _, t := range types {
		c.types[t.Name] = t
	}
	return c
}

func (c *Catalog) Lookup(name string) (Type, bool) {
	t, ok := c.types[name]
	return t, ok
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.types))
	for n := range c.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultCatalog holds the built-in plugin types.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Type{
			Name:        "SectionPlugin",
			DisplayName: "Section",
			ElementID:   true,
			GlossaryFields: []form.Field{
				{Name: "tag_type", Label: "Tag Type", Kind: form.Choice, Required: true, Options: []form.Option{
					{Value: "section", Label: "section"},
					{Value: "div", Label: "div"},
					{Value: "article", Label: "article"},
				}},
				{Name: "css_classes", Label: "CSS Classes", Kind: form.Text},
			},
		},
		Type{
			Name:           "TextLinkPlugin",
			DisplayName:    "Link",
			Link:           true,
			LinkContent:    true,
			SharableFields: []string{link.SharableKey},
		},
		Type{
			Name:        "ButtonPlugin",
			DisplayName: "Button",
			ElementID:   true,
			Link:        true,
			LinkContent: true,
			GlossaryFields: []form.Field{
				{Name: "button_type", Label: "Button Type", Kind: form.Choice, Required: true, Options: []form.Option{
					{Value: "btn-primary", Label: "Primary"},
					{Value: "btn-default", Label: "Default"},
					{Value: "btn-link", Label: "Link"},
				}},
			},
		},
		Type{
			Name:        "HeadingPlugin",
			DisplayName: "Heading",
			GlossaryFields: []form.Field{
				{Name: "content", Label: "Heading", Kind: form.Text, Required: true},
			},
		},
	)
}
