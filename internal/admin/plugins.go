package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"strconv"

	"cascade/internal/cms"
	"cascade/internal/elementid"
	"cascade/internal/form"
	"cascade/internal/plugin"
)

var errUnknownPluginType = errors.New("unknown plugin type")

// pluginView is a plugin tree entry.
type pluginView struct {
	ID         int64         `json:"id"`
	PluginType string        `json:"plugin_type"`
	Position   int           `json:"position"`
	ElementID  string        `json:"element_id,omitempty"`
	Identifier template.HTML `json:"identifier"`
}

func (s *Server) view(inst cms.PluginInstance) pluginView {
	v := pluginView{
		ID:         inst.ID,
		PluginType: inst.PluginType,
		Position:   inst.Position,
		ElementID:  inst.Glossary.ElementID,
		Identifier: template.HTML(template.HTMLEscapeString(inst.PluginType)),
	}
	if t, ok := s.catalog.Lookup(inst.PluginType); ok {
		v.Identifier = t.Identifier(inst.Glossary)
	}
	return v
}

// siteFor returns the site whose pages inst may link to: the site of its page, or
// the configured default site while it has none.
func (s *Server) siteFor(ctx context.Context, inst cms.PluginInstance) (int64, error) {
	if inst.HasPage() {
		page, err := s.store.GetPage(ctx, inst.PageID)
		if err == nil {
			return page.SiteID, nil
		}
		if !errors.Is(err, cms.ErrNotFound) {
			return 0, err
		}
	}
	return s.cfg.DefaultSiteID, nil
}

func (s *Server) newEditor(ctx context.Context, inst cms.PluginInstance, values url.Values) (*plugin.Editor, error) {
	t, ok := s.catalog.Lookup(inst.PluginType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownPluginType, inst.PluginType)
	}
	site, err := s.siteFor(ctx, inst)
	if err != nil {
		return nil, err
	}
	opts := plugin.EditOptions{
		SiteID:         site,
		SharedGlossary: values.Get("shared_glossary") != "",
	}
	if sharable, ok := values["sharable_fields"]; ok {
		opts.Sharable = append([]string{}, sharable...)
	}
	return plugin.NewEditor(ctx, plugin.Deps{Enforcer: s.enforcer, Pages: s.store}, t, inst, opts)
}

// afterSave runs the post save hooks of the instance's plugin type.
func (s *Server) afterSave(ctx context.Context, inst cms.PluginInstance, created bool) (cms.PluginInstance, error) {
	t, ok := s.catalog.Lookup(inst.PluginType)
	if !ok {
		return inst, nil
	}
	if t.ElementID {
		var err error
		inst, err = s.enforcer.AfterSave(ctx, inst, created)
		if err != nil {
			return inst, err
		}
	}
	action := "update"
	if created {
		action = "create"
	}
	s.metrics.PluginSaved(inst.PluginType, action)
	if t.Link {
		s.metrics.LinkSaved(string(inst.Glossary.Link.Kind()))
	}
	return inst, nil
}

// createPlugin validates values as the add form of pluginType and stores the new
// instance on pageID. A non-nil editor with ok false carries the validation errors.
func (s *Server) createPlugin(ctx context.Context, pageID int64, pluginType string, values url.Values) (cms.PluginInstance, *plugin.Editor, bool, error) {
	if _, err := s.store.GetPage(ctx, pageID); err != nil {
		return cms.PluginInstance{}, nil, false, err
	}
	inst := cms.PluginInstance{PageID: pageID, PluginType: pluginType}
	ed, err := s.newEditor(ctx, inst, values)
	if err != nil {
		return inst, nil, false, err
	}
	g, ok, err := ed.Submit(ctx, values)
	if err != nil || !ok {
		return inst, ed, false, err
	}
	inst.Glossary = g
	inst, err = s.store.CreateInstance(ctx, inst)
	if err != nil {
		return inst, ed, false, err
	}
	inst, err = s.afterSave(ctx, inst, true)
	if err != nil {
		return inst, ed, false, err
	}
	s.log(ctx).Info("plugins.create", slog.Int64("plugin_id", inst.ID), slog.Int64("page_id", pageID), slog.String("plugin_type", pluginType))
	return inst, ed, true, nil
}

func (s *Server) updatePlugin(ctx context.Context, inst cms.PluginInstance, values url.Values) (cms.PluginInstance, *plugin.Editor, bool, error) {
	ed, err := s.newEditor(ctx, inst, values)
	if err != nil {
		return inst, nil, false, err
	}
	g, ok, err := ed.Submit(ctx, values)
	if err != nil || !ok {
		return inst, ed, false, err
	}
	inst.Glossary = g
	// Element id types on a page are saved together with their page entry.
	if !ed.Type.ElementID || !inst.HasPage() {
		if err := s.store.SaveInstanceGlossary(ctx, inst); err != nil {
			return inst, ed, false, err
		}
	}
	inst, err = s.afterSave(ctx, inst, false)
	var ve *form.ValidationError
	if errors.As(err, &ve) {
		ed.Form.AddError(elementid.FieldName, ve.Message)
		return inst, ed, false, nil
	}
	if err != nil {
		return inst, ed, false, err
	}
	s.log(ctx).Info("plugins.update", slog.Int64("plugin_id", inst.ID), slog.String("plugin_type", inst.PluginType))
	return inst, ed, true, nil
}

// copyPlugin duplicates src onto pageID. The copy keeps the glossary, so its element
// id is renamed by the post save hook when it clashes.
func (s *Server) copyPlugin(ctx context.Context, src cms.PluginInstance, pageID int64) (cms.PluginInstance, error) {
	if _, err := s.store.GetPage(ctx, pageID); err != nil {
		return cms.PluginInstance{}, err
	}
	inst, err := s.store.CreateInstance(ctx, cms.PluginInstance{
		PageID:     pageID,
		PluginType: src.PluginType,
		Glossary:   src.Glossary.Clone(),
	})
	if err != nil {
		return inst, err
	}
	inst, err = s.afterSave(ctx, inst, true)
	if err != nil {
		return inst, err
	}
	s.log(ctx).Info("plugins.copy", slog.Int64("plugin_id", inst.ID), slog.Int64("source_id", src.ID), slog.Int64("page_id", pageID))
	return inst, nil
}

func (s *Server) deletePlugin(ctx context.Context, id int64) (cms.PluginInstance, error) {
	inst, err := s.store.DeleteInstance(ctx, id)
	if err != nil {
		return inst, err
	}
	if err := s.enforcer.Forget(ctx, inst); err != nil {
		return inst, err
	}
	s.metrics.PluginSaved(inst.PluginType, "delete")
	s.log(ctx).Info("plugins.delete", slog.Int64("plugin_id", id), slog.Int64("page_id", inst.PageID))
	return inst, nil
}

// requestValues reads submitted field values from a JSON body
// {"plugin_type": "...", "values": {"field": "value"}} or from form data. JSON null
// and false leave the field out, as a form post would.
func requestValues(body []byte, contentType string, posted url.Values) (string, url.Values, error) {
	if contentType == "application/json" {
		var req struct {
			PluginType string         `json:"plugin_type"`
			Values     map[string]any `json:"values"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return "", nil, err
		}
		values := url.Values{}
		for k, v := range req.Values {
			switch tv := v.(type) {
			case []any:
				for _, item := range tv {
					values.Add(k, fmt.Sprint(item))
				}
			case nil:
			case bool:
				if tv {
					values.Set(k, "true")
				}
			case float64:
				values.Set(k, strconv.FormatFloat(tv, 'f', -1, 64))
			default:
				values.Set(k, fmt.Sprint(tv))
			}
		}
		return req.PluginType, values, nil
	}
	return posted.Get("plugin_type"), posted, nil
}
