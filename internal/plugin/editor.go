package plugin

import (
	"context"
	"net/url"

	"cascade/internal/cms"
	"cascade/internal/elementid"
	"cascade/internal/form"
	"cascade/internal/glossary"
	"cascade/internal/link"
)

type Deps struct {
	Enforcer *elementid.Enforcer
	Pages    link.Directory
}

type EditOptions struct {
	// SiteID is the site whose pages internal links may target.
	SiteID int64
	// SharedGlossary is set when the submitted data comes from a shared glossary.
	SharedGlossary bool
	// Sharable, when not nil, lists the fields a shared glossary editor handles;
	// the link type stays required only if the link is one of them.
	Sharable []string
}

// Editor is the change form of one plugin instance. A zero instance ID means the
// instance is being added.
type Editor struct {
	Type     Type
	Instance cms.PluginInstance
	Form     *form.Form
	result   glossary.Instance
}

func NewEditor(ctx context.Context, deps Deps, t Type, inst cms.PluginInstance, opts EditOptions) (*Editor, error) {
	e := &Editor{Type: t, Instance: inst, result: inst.Glossary.Clone()}
	f := form.New()
	for _, gf := range t.GlossaryFields {
		fl := gf
		f.Add(&fl)
		f.SetInitial(fl.Name, inst.Glossary.String(fl.Name))
		name := fl.Name
		f.OnClean(name, func(_ context.Context, f *form.Form) error {
			e.result.SetString(name, f.CleanedString(name))
			return nil
		})
	}
	if t.ElementID && deps.Enforcer != nil {
		deps.Enforcer.Attach(f, inst, &e.result, inst.ID != 0)
	}
	if t.Link {
		err := link.Attach(ctx, f, deps.Pages, inst.Glossary, &e.result, link.Options{
			SiteID:         opts.SiteID,
			SharedGlossary: opts.SharedGlossary,
			Choices:        t.LinkChoices,
		})
		if err != nil {
			return nil, err
		}
		if opts.Sharable != nil {
			link.UnsetRequiredFor(f, opts.Sharable)
		}
		if t.LinkContent {
			link.AttachContent(f, inst.Glossary, &e.result)
		}
	}
	e.Form = f
	return e, nil
}

// Submit validates values and returns the glossary they produce. ok is false when the
// form has validation errors, which are then available on e.Form.
func (e *Editor) Submit(ctx context.Context, values url.Values) (glossary.Instance, bool, error) {
	e.result = e.Instance.Glossary.Clone()
	e.Form.Bind(values)
	ok, err := e.Form.Validate(ctx)
	if err != nil || !ok {
		return glossary.Instance{}, false, err
	}
	return e.result.Clone(), true, nil
}

// Initial returns the value each field starts with.
func (e *Editor) Initial() map[string]string {
	out := make(map[string]string, len(e.Form.Fields()))
	for _, fl := range e.Form.Fields() {
		out[fl.Name] = e.Form.Initial(fl.Name)
	}
	return out
}
