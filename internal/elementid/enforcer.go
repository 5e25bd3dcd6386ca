package elementid

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"cascade/internal/cms"
	"cascade/internal/form"
	"cascade/internal/glossary"
)

// FieldName is the form field and glossary key holding an instance's element id.
const FieldName = "element_id"

// Documents gives access to the page glossaries the enforcer maintains.
type Documents interface {
	PageGlossary(ctx context.Context, pageID int64) (glossary.Page, error)
	// UpdatePageGlossary loads the page glossary, passes it to fn and stores the
	// result unless fn fails. Implementations hold the page for the duration of fn.
	UpdatePageGlossary(ctx context.Context, pageID int64, fn func(tx PageTx, pg *glossary.Page) error) error
}

// PageTx is the locked page handed to UpdatePageGlossary callbacks. Writes made
// through it commit or roll back together with the page glossary.
type PageTx interface {
	SaveInstanceGlossary(ctx context.Context, inst cms.PluginInstance) error
	// InstanceKeys returns the keys of the instances placed on the page.
	InstanceKeys(ctx context.Context) ([]string, error)
}

// Recorder receives counters about enforcement outcomes.
type Recorder interface {
	ElementIDRejected()
	ElementIDResolved(suffix int)
	ElementIDsPruned(n int)
}

type nopRecorder struct{}

func (nopRecorder) ElementIDRejected()    {}
func (nopRecorder) ElementIDResolved(int) {}
func (nopRecorder) ElementIDsPruned(int)  {}

type Enforcer struct {
	docs   Documents
	logger *slog.Logger
	rec    Recorder
}

func NewEnforcer(docs Documents, logger *slog.Logger, rec Recorder) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Enforcer{docs: docs, logger: logger, rec: rec}
}

// CheckInstance checks candidate against the element ids of the instance's page.
func (e *Enforcer) CheckInstance(ctx context.Context, inst cms.PluginInstance, candidate string) (Verdict, error) {
	if !inst.HasPage() {
		return Undetermined, nil
	}
	pg, err := e.docs.PageGlossary(ctx, inst.PageID)
	if err != nil {
		if errors.Is(err, cms.ErrNotFound) {
			return Undetermined, nil
		}
		return Undetermined, fmt.Errorf("element ids of page %d: %w", inst.PageID, err)
	}
	return Check(pg.ElementIDs, inst.Key(), candidate), nil
}

// Validate fails with a form validation error when candidate is already used by
// another instance on the same page.
func (e *Enforcer) Validate(ctx context.Context, inst cms.PluginInstance, candidate string) error {
	verdict, err := e.CheckInstance(ctx, inst, candidate)
	if err != nil {
		return err
	}
	if verdict == Conflicting {
		e.rec.ElementIDRejected()
		return form.Invalid(fmt.Sprintf("The element ID `%s` is not unique for this page.", candidate))
	}
	return nil
}

// AfterSave records the instance's element id on its page while holding the page.
// For newly created instances a clashing id is first renamed with the smallest free
// numeric suffix and the instance is saved again. Edits are checked once more against
// the held page and their glossary is written in the same transaction; a clash fails
// with a *form.ValidationError and nothing is written.
func (e *Enforcer) AfterSave(ctx context.Context, inst cms.PluginInstance, created bool) (cms.PluginInstance, error) {
	if !inst.HasPage() {
		return inst, nil
	}
	err := e.docs.UpdatePageGlossary(ctx, inst.PageID, func(tx PageTx, pg *glossary.Page) error {
		final := inst.Glossary.ElementID
		if created {
			resolved, suffix := Resolve(pg.ElementIDs, inst.Key(), final)
			if suffix > 0 {
				inst.Glossary.ElementID = resolved
				if err := tx.SaveInstanceGlossary(ctx, inst); err != nil {
					return fmt.Errorf("save renamed instance %d: %w", inst.ID, err)
				}
				e.rec.ElementIDResolved(suffix)
				e.logger.Info("element_id_resolved",
					slog.Int64("instance_id", inst.ID),
					slog.Int64("page_id", inst.PageID),
					slog.String("requested", final),
					slog.String("assigned", resolved))
			}
			final = resolved
		} else {
			if Check(pg.ElementIDs, inst.Key(), final) == Conflicting {
				e.rec.ElementIDRejected()
				return form.Invalid(fmt.Sprintf("The element ID `%s` is not unique for this page.", final))
			}
			if err := tx.SaveInstanceGlossary(ctx, inst); err != nil {
				return fmt.Errorf("save instance %d: %w", inst.ID, err)
			}
		}
		pg.SetElementID(inst.Key(), final)
		return nil
	})
	if err != nil {
		return inst, err
	}
	return inst, nil
}

// Forget drops the instance's entry from its page, used when the instance is deleted.
func (e *Enforcer) Forget(ctx context.Context, inst cms.PluginInstance) error {
	if !inst.HasPage() {
		return nil
	}
	err := e.docs.UpdatePageGlossary(ctx, inst.PageID, func(_ PageTx, pg *glossary.Page) error {
		pg.RemoveElementID(inst.Key())
		return nil
	})
	if errors.Is(err, cms.ErrNotFound) {
		return nil
	}
	return err
}

// Prune removes the entries of pageID whose instance no longer exists and returns
// the removed keys. Live instances are listed while the page is held, so an instance
// recorded concurrently is never taken for stale.
func (e *Enforcer) Prune(ctx context.Context, pageID int64) ([]string, error) {
	var removed []string
	err := e.docs.UpdatePageGlossary(ctx, pageID, func(tx PageTx, pg *glossary.Page) error {
		removed = removed[:0]
		live, err := tx.InstanceKeys(ctx)
		if err != nil {
			return fmt.Errorf("instances of page %d: %w", pageID, err)
		}
		alive := make(map[string]struct{}, len(live))
		for _, k := range live {
			alive[k] = struct{}{}
		}
		for _, k := range pg.ElementIDKeys() {
			if _, ok := alive[k]; ok {
				continue
			}
			pg.RemoveElementID(k)
			removed = append(removed, k)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		e.rec.ElementIDsPruned(len(removed))
		e.logger.Info("element_ids_pruned", slog.Int64("page_id", pageID), slog.Int("removed", len(removed)))
	}
	return removed, nil
}

// Attach adds the "Element ID" field to f. The cleaned id is normalised and written
// to target. When change is set the id is also checked for uniqueness on the page.
func (e *Enforcer) Attach(f *form.Form, inst cms.PluginInstance, target *glossary.Instance, change bool) {
	f.Add(&form.Field{
		Name:     FieldName,
		Label:    "Element ID",
		HelpText: "A unique identifier for this element.",
		Kind:     form.Text,
		Required: true,
	})
	f.SetInitial(FieldName, inst.Glossary.ElementID)
	f.OnClean(FieldName, func(ctx context.Context, f *form.Form) error {
		id := Normalize(f.CleanedString(FieldName))
		if hasSpace(id) {
			return form.Invalid("The element ID must not contain whitespace.")
		}
		if change {
			if err := e.Validate(ctx, inst, id); err != nil {
				return err
			}
		}
		f.SetCleaned(FieldName, id)
		target.ElementID = id
		return nil
	})
}

// Identifier decorates a plugin's identifier with its element id, if it has one.
func Identifier(base string, g glossary.Instance) template.HTML {
	if g.ElementID == "" {
		return template.HTML(template.HTMLEscapeString(base))
	}
	return template.HTML(fmt.Sprintf("%s ID: <em>%s</em>",
		template.HTMLEscapeString(base), template.HTMLEscapeString(g.ElementID)))
}
