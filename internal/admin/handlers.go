package admin

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cascade/internal/auth"
	"cascade/internal/cms"
	"cascade/internal/form"
	"cascade/internal/plugin"
	"cascade/internal/ui"
)

const maxBodyBytes = 1 << 20

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cms.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	case errors.Is(err, errUnknownPluginType):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown_plugin_type"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "db_error"})
	}
}

func writeValidation(w http.ResponseWriter, ed *plugin.Editor) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"error":  "validation_failed",
		"fields": ed.Form.Errors(),
	})
}

// readValues returns the plugin type and field values of a create or update request.
func readValues(w http.ResponseWriter, r *http.Request) (string, url.Values, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return "", nil, err
		}
		return requestValues(body, mediaType, nil)
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return "", nil, err
	}
	return requestValues(nil, mediaType, r.PostForm)
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	pageID, ok := parseID(chi.URLParam(r, "pageID"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_page_id"})
		return
	}
	if _, err := s.store.GetPage(r.Context(), pageID); err != nil {
		writeStoreError(w, err)
		return
	}
	insts, err := s.store.ListInstances(r.Context(), pageID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	views := make([]pluginView, 0, len(insts))
	for _, inst := range insts {
		views = append(views, s.view(inst))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"page_id": pageID, "plugins": views})
}

func (s *Server) handleCreatePlugin(w http.ResponseWriter, r *http.Request) {
	pageID, ok := parseID(chi.URLParam(r, "pageID"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_page_id"})
		return
	}
	pluginType, values, err := readValues(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if _, known := s.catalog.Lookup(pluginType); !known {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown_plugin_type"})
		return
	}
	inst, ed, valid, err := s.createPlugin(r.Context(), pageID, pluginType, values)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !valid {
		writeValidation(w, ed)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"plugin": inst, "tree": s.view(inst)})
}

func (s *Server) loadInstance(w http.ResponseWriter, r *http.Request) (cms.PluginInstance, bool) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_id"})
		return cms.PluginInstance{}, false
	}
	inst, err := s.store.GetInstance(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return cms.PluginInstance{}, false
	}
	return inst, true
}

func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.loadInstance(w, r)
	if !ok {
		return
	}
	ed, err := s.newEditor(r.Context(), inst, url.Values{})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"plugin":  inst,
		"tree":    s.view(inst),
		"initial": ed.Initial(),
	})
}

func (s *Server) handleUpdatePlugin(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.loadInstance(w, r)
	if !ok {
		return
	}
	_, values, err := readValues(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	inst, ed, valid, err := s.updatePlugin(r.Context(), inst, values)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !valid {
		writeValidation(w, ed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"plugin": inst, "tree": s.view(inst)})
}

func (s *Server) handleCopyPlugin(w http.ResponseWriter, r *http.Request) {
	src, ok := s.loadInstance(w, r)
	if !ok {
		return
	}
	pageID := src.PageID
	if v := r.URL.Query().Get("page_id"); v != "" {
		if pageID, ok = parseID(v); !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_page_id"})
			return
		}
	}
	if pageID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "page_required"})
		return
	}
	inst, err := s.copyPlugin(r.Context(), src, pageID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"plugin": inst, "tree": s.view(inst)})
}

func (s *Server) handleDeletePlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_id"})
		return
	}
	if _, err := s.deletePlugin(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleElementIDs(w http.ResponseWriter, r *http.Request) {
	pageID, ok := parseID(chi.URLParam(r, "pageID"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_page_id"})
		return
	}
	pg, err := s.store.PageGlossary(r.Context(), pageID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	ids := pg.ElementIDs
	if ids == nil {
		ids = map[string]string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"page_id": pageID, "element_ids": ids})
}

func (s *Server) handleUIPlugins(w http.ResponseWriter, r *http.Request) {
	editor, _ := auth.EditorFromContext(r.Context())
	pageID, ok := parseID(chi.URLParam(r, "pageID"))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	page, err := s.store.GetPage(r.Context(), pageID)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	insts, err := s.store.ListInstances(r.Context(), pageID)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	views := make([]pluginView, 0, len(insts))
	for _, inst := range insts {
		views = append(views, s.view(inst))
	}
	data := map[string]interface{}{
		"Title":       page.Title,
		"PageID":      page.ID,
		"Editor":      editor,
		"Page":        page,
		"PageURL":     page.AbsoluteURL(),
		"Plugins":     views,
		"PluginTypes": s.catalog.Names(),
		"CSRFToken":   s.csrfFromContext(r.Context()),
	}
	if err := s.renderer.Render(w, http.StatusOK, "plugins", data); err != nil {
		s.log(r.Context()).Error("render_failed", "template", "plugins", "error", err)
	}
}

func (s *Server) handleUIAddPlugin(w http.ResponseWriter, r *http.Request) {
	pageID, ok := parseID(chi.URLParam(r, "pageID"))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	pluginType := r.URL.Query().Get("plugin_type")
	action := "/ui/pages/" + strconv.FormatInt(pageID, 10) + "/plugins/add?plugin_type=" + url.QueryEscape(pluginType)
	inst := cms.PluginInstance{PageID: pageID, PluginType: pluginType}

	if r.Method == http.MethodGet {
		if _, err := s.store.GetPage(r.Context(), pageID); err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		ed, err := s.newEditor(r.Context(), inst, url.Values{})
		if err != nil {
			s.uiError(w, err)
			return
		}
		s.renderEdit(w, r, http.StatusOK, ed, action)
		return
	}

	created, ed, valid, err := s.createPlugin(r.Context(), pageID, pluginType, r.PostForm)
	if err != nil {
		s.uiError(w, err)
		return
	}
	if !valid {
		s.renderEdit(w, r, http.StatusUnprocessableEntity, ed, action)
		return
	}
	http.Redirect(w, r, "/ui/pages/"+strconv.FormatInt(created.PageID, 10)+"/plugins", http.StatusSeeOther)
}

func (s *Server) handleUIEditPlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	inst, err := s.store.GetInstance(r.Context(), id)
	if err != nil {
		s.uiError(w, err)
		return
	}
	action := "/ui/plugins/" + strconv.FormatInt(id, 10) + "/edit"

	if r.Method == http.MethodGet {
		ed, err := s.newEditor(r.Context(), inst, url.Values{})
		if err != nil {
			s.uiError(w, err)
			return
		}
		s.renderEdit(w, r, http.StatusOK, ed, action)
		return
	}

	updated, ed, valid, err := s.updatePlugin(r.Context(), inst, r.PostForm)
	if err != nil {
		s.uiError(w, err)
		return
	}
	if !valid {
		s.renderEdit(w, r, http.StatusUnprocessableEntity, ed, action)
		return
	}
	http.Redirect(w, r, "/ui/pages/"+strconv.FormatInt(updated.PageID, 10)+"/plugins", http.StatusSeeOther)
}

func (s *Server) uiError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cms.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, errUnknownPluginType):
		http.Error(w, "unknown plugin type", http.StatusBadRequest)
	default:
		http.Error(w, "db error", http.StatusInternalServerError)
	}
}

func (s *Server) renderEdit(w http.ResponseWriter, r *http.Request, status int, ed *plugin.Editor, action string) {
	editor, _ := auth.EditorFromContext(r.Context())
	data := map[string]interface{}{
		"Title":          ed.Type.DisplayName,
		"PageID":         ed.Instance.PageID,
		"Editor":         editor,
		"Instance":       ed.Instance,
		"Identifier":     ed.Type.Identifier(ed.Instance.Glossary),
		"Action":         action,
		"Fields":         ui.Fields(ed.Form),
		"NonFieldErrors": ed.Form.FieldErrors(form.NonFieldErrors),
		"CSRFToken":      s.csrfFromContext(r.Context()),
	}
	if err := s.renderer.Render(w, status, "edit", data); err != nil {
		s.log(r.Context()).Error("render_failed", "template", "edit", "error", err)
	}
}
