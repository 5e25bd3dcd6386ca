// Package link adds the link editing fields to a plugin form and folds the submitted
// values into one canonical glossary link.
package link

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"cascade/internal/cms"
	"cascade/internal/form"
	"cascade/internal/glossary"
)

const (
	FieldLinkType    = "link_type"
	FieldCMSPage     = "cms_page"
	FieldExtURL      = "ext_url"
	FieldMailTo      = "mail_to"
	FieldLinkContent = "link_content"
)

// SharableKey is the name under which a shared glossary editor lists the link fields.
const SharableKey = "link"

var DefaultChoices = []form.Option{
	{Value: string(glossary.LinkNone), Label: "No Link"},
	{Value: string(glossary.LinkCMSPage), Label: "CMS Page"},
	{Value: string(glossary.LinkExtURL), Label: "External URL"},
	{Value: string(glossary.LinkEmail), Label: "Mail To"},
}

// Directory looks up the pages a link can point at.
type Directory interface {
	DraftPages(ctx context.Context, siteID int64) ([]cms.Page, error)
	PageExists(ctx context.Context, model string, pk int64) (bool, error)
}

type Options struct {
	// SiteID selects the pages offered for internal links. Callers pass the site of
	// the edited page, or the default site when the instance has no page yet.
	SiteID int64
	// SharedGlossary makes the link type optional; a shared glossary supplies it.
	SharedGlossary bool
	Choices        []form.Option
}

type binding struct {
	target *glossary.Instance
	staged *glossary.Link
}

// Attach adds link_type, cms_page, ext_url and mail_to to f, seeds their initial
// values from stored and registers the hooks that write the merged link into target.
func Attach(ctx context.Context, f *form.Form, dir Directory, stored glossary.Instance, target *glossary.Instance, opts Options) error {
	choices := opts.Choices
	if len(choices) == 0 {
		choices = DefaultChoices
	}
	current := stored.Link
	if current == nil {
		current = glossary.NoLink()
	}

	pages, err := dir.DraftPages(ctx, opts.SiteID)
	if err != nil {
		return fmt.Errorf("pages of site %d: %w", opts.SiteID, err)
	}
	pageOptions := make([]form.Option, 0, len(pages))
	for _, p := range pages {
		pageOptions = append(pageOptions, form.Option{
			Value: strconv.FormatInt(p.ID, 10),
			Label: fmt.Sprintf("%s (%s)", plainText(p.Title), p.AbsoluteURL()),
		})
	}

	f.Add(
		&form.Field{
			Name:     FieldLinkType,
			Label:    "Link",
			Kind:     form.Choice,
			Required: !opts.SharedGlossary,
			Options:  choices,
		},
		&form.Field{
			Name:     FieldCMSPage,
			HelpText: "An internal link onto CMS pages of this site",
			Kind:     form.Choice,
			Options:  pageOptions,
			Parse:    parsePageID,
		},
		&form.Field{
			Name:     FieldExtURL,
			HelpText: "Link onto external page",
			Kind:     form.URL,
		},
		&form.Field{
			Name:     FieldMailTo,
			HelpText: "Open Email program with this address",
			Kind:     form.Email,
		},
	)
	f.SetInitial(FieldLinkType, string(current.Kind()))
	if init, ok := initializers[current.Kind()]; ok {
		if err := init(ctx, dir, current, f); err != nil {
			return err
		}
	}

	b := &binding{target: target}
	f.OnClean(FieldCMSPage, b.cleanCMSPage)
	f.OnClean(FieldExtURL, b.cleanExtURL)
	f.OnClean(FieldMailTo, b.cleanMailTo)
	f.OnFinish(b.merge)
	return nil
}

// UnsetRequiredFor makes the link type optional on f unless the link is one of the
// sharable fields.
func UnsetRequiredFor(f *form.Form, sharable []string) {
	for _, name := range sharable {
		if name == SharableKey {
			return
		}
	}
	if fl := f.Field(FieldLinkType); fl != nil {
		fl.Required = false
	}
}

// AttachContent adds the required link text field; its value is stored next to the
// link once the form validated.
func AttachContent(f *form.Form, stored glossary.Instance, target *glossary.Instance) {
	f.Add(&form.Field{
		Name:     FieldLinkContent,
		Label:    "Link Content",
		HelpText: "Content of the link",
		Kind:     form.Text,
		Required: true,
	})
	f.SetInitial(FieldLinkContent, stored.LinkContent)
	f.OnFinish(func(_ context.Context, f *form.Form) error {
		target.LinkContent = f.CleanedString(FieldLinkContent)
		return nil
	})
}

func selected(f *form.Form) glossary.LinkKind {
	return glossary.LinkKind(f.CleanedString(FieldLinkType))
}

func (b *binding) cleanCMSPage(_ context.Context, f *form.Form) error {
	if selected(f) != glossary.LinkCMSPage {
		return nil
	}
	if pk, ok := f.Cleaned(FieldCMSPage); ok {
		if id, ok := pk.(int64); ok {
			b.staged = glossary.PageLink(id)
			return nil
		}
	}
	b.staged = &glossary.Link{Type: glossary.LinkCMSPage}
	return nil
}

func (b *binding) cleanExtURL(_ context.Context, f *form.Form) error {
	if selected(f) == glossary.LinkExtURL {
		b.staged = glossary.ExternalLink(f.CleanedString(FieldExtURL))
	}
	return nil
}

func (b *binding) cleanMailTo(_ context.Context, f *form.Form) error {
	if selected(f) == glossary.LinkEmail {
		b.staged = glossary.EmailLink(f.CleanedString(FieldMailTo))
	}
	return nil
}

func (b *binding) merge(_ context.Context, f *form.Form) error {
	switch {
	case b.staged != nil:
		b.target.Link = b.staged
	case selected(f) != "":
		b.target.Link = &glossary.Link{Type: selected(f)}
	default:
		b.target.Link = glossary.NoLink()
	}
	b.staged = nil
	return nil
}

// parsePageID reads the submitted page as an integer id. Anything else means no
// page was selected.
func parsePageID(raw string) (any, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, nil
	}
	return id, nil
}

type initializer func(ctx context.Context, dir Directory, l *glossary.Link, f *form.Form) error

// initializers seed the payload field of the stored link's kind. Missing payload or a
// page that is gone leaves the field empty.
var initializers = map[glossary.LinkKind]initializer{
	glossary.LinkNone:    func(context.Context, Directory, *glossary.Link, *form.Form) error { return nil },
	glossary.LinkCMSPage: initialCMSPage,
	glossary.LinkExtURL: func(_ context.Context, _ Directory, l *glossary.Link, f *form.Form) error {
		f.SetInitial(FieldExtURL, l.URL)
		return nil
	},
	glossary.LinkEmail: func(_ context.Context, _ Directory, l *glossary.Link, f *form.Form) error {
		f.SetInitial(FieldMailTo, l.Email)
		return nil
	},
}

func initialCMSPage(ctx context.Context, dir Directory, l *glossary.Link, f *form.Form) error {
	if l.PK == nil || l.Model == "" {
		return nil
	}
	ok, err := dir.PageExists(ctx, l.Model, *l.PK)
	if err != nil {
		if errors.Is(err, cms.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("linked page %d: %w", *l.PK, err)
	}
	if ok {
		f.SetInitial(FieldCMSPage, strconv.FormatInt(*l.PK, 10))
	}
	return nil
}

// plainText strips markup from a stored page title.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
