package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cascade/internal/auth"
	"cascade/internal/cms"
	"cascade/internal/config"
	"cascade/internal/glossary"
	"cascade/internal/ratelimit"
	"cascade/internal/ui"
)

type testEnv struct {
	t       *testing.T
	st      *memStore
	srv     *Server
	handler http.Handler
	token   string
	session string
	csrf    string
}

func sectionGlossary(elementID string) glossary.Instance {
	g := glossary.Instance{ElementID: elementID}
	g.SetString("tag_type", "section")
	return g
}

// newTestEnv serves page 1 with sections 3 ("intro") and 5 ("footer").
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := newMemStore()
	st.addPage(cms.Page{ID: 1, SiteID: 1, Title: "Home", IsDraft: true, Glossary: glossary.Page{
		ElementIDs: map[string]string{"3": "intro", "5": "footer"},
	}})
	st.addPage(cms.Page{ID: 2, SiteID: 1, Title: "About <b>us</b>", Path: "about", IsDraft: true})
	st.addPage(cms.Page{ID: 9, SiteID: 2, Title: "Elsewhere", Path: "other", IsDraft: true})
	st.addInstance(cms.PluginInstance{ID: 3, PageID: 1, PluginType: "SectionPlugin", Position: 1, Glossary: sectionGlossary("intro")})
	st.addInstance(cms.PluginInstance{ID: 5, PageID: 1, PluginType: "SectionPlugin", Position: 2, Glossary: sectionGlossary("footer")})

	editor, err := st.UpsertEditor(context.Background(), "sub-1", "ed@example.com", "Ed", "")
	require.NoError(t, err)
	sess, err := st.CreateSession(context.Background(), editor.ID, "csrf-token", time.Hour)
	require.NoError(t, err)

	cfg := config.Config{JWTSecret: "test-secret", DefaultSiteID: 1, PublicBaseURL: "http://localhost"}
	renderer, err := ui.New()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(cfg, st, ratelimit.New(600, 100), logger, renderer, nil, nil)

	token, _, err := auth.IssueToken(cfg.JWTSecret, editor.ID, time.Hour)
	require.NoError(t, err)
	return &testEnv{t: t, st: st, srv: srv, handler: srv.Routes(), token: token, session: sess.ID, csrf: sess.CSRFToken}
}

func (e *testEnv) api(method, path string, values url.Values) *httptest.ResponseRecorder {
	e.t.Helper()
	var body io.Reader
	if values != nil {
		body = strings.NewReader(values.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) apiJSON(method, path, body string) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) web(method, path string, values url.Values) *httptest.ResponseRecorder {
	e.t.Helper()
	var body io.Reader
	if values != nil {
		body = strings.NewReader(values.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: e.session})
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

type pluginResponse struct {
	Plugin struct {
		ID       int64                      `json:"id"`
		PageID   int64                      `json:"page_id"`
		Glossary map[string]json.RawMessage `json:"glossary"`
	} `json:"plugin"`
	Tree struct {
		Identifier string `json:"identifier"`
	} `json:"tree"`
}

func decodePlugin(t *testing.T, rr *httptest.ResponseRecorder) pluginResponse {
	t.Helper()
	var resp pluginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func TestCreateSectionRenamesClashingElementID(t *testing.T) {
	e := newTestEnv(t)

	rr := e.api(http.MethodPost, "/v1/pages/1/plugins", url.Values{
		"plugin_type": {"SectionPlugin"},
		"tag_type":    {"div"},
		"element_id":  {"intro"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	resp := decodePlugin(t, rr)
	assert.JSONEq(t, `"intro_1"`, string(resp.Plugin.Glossary["element_id"]))
	assert.Equal(t, "Section ID: <em>intro_1</em>", resp.Tree.Identifier)

	stored, err := e.st.GetInstance(context.Background(), resp.Plugin.ID)
	require.NoError(t, err)
	assert.Equal(t, "intro_1", stored.Glossary.ElementID)
	assert.Equal(t, "div", stored.Glossary.String("tag_type"))

	ids := e.st.pages[1].Glossary.ElementIDs
	assert.Equal(t, map[string]string{"3": "intro", "5": "footer", stored.Key(): "intro_1"}, ids)
}

func TestCreateFromJSONBody(t *testing.T) {
	e := newTestEnv(t)

	rr := e.apiJSON(http.MethodPost, "/v1/pages/1/plugins",
		`{"plugin_type":"SectionPlugin","values":{"tag_type":"article","element_id":"hero"}}`)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decodePlugin(t, rr)
	assert.JSONEq(t, `"hero"`, string(resp.Plugin.Glossary["element_id"]))
}

func TestCreateRejectsUnknownPluginTypeAndPage(t *testing.T) {
	e := newTestEnv(t)

	rr := e.api(http.MethodPost, "/v1/pages/1/plugins", url.Values{"plugin_type": {"Nope"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "unknown_plugin_type")

	rr = e.api(http.MethodPost, "/v1/pages/404/plugins", url.Values{"plugin_type": {"SectionPlugin"}, "tag_type": {"div"}, "element_id": {"x"}})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateReportsFieldErrors(t *testing.T) {
	e := newTestEnv(t)

	rr := e.api(http.MethodPost, "/v1/pages/1/plugins", url.Values{
		"plugin_type": {"SectionPlugin"},
		"tag_type":    {"marquee"},
		"element_id":  {"has space"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var resp struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "validation_failed", resp.Error)
	assert.Contains(t, resp.Fields, "tag_type")
	assert.Equal(t, []string{"The element ID must not contain whitespace."}, resp.Fields["element_id"])
	assert.Len(t, e.st.instances, 2)
}

func TestEditWithDuplicateElementIDIsRejected(t *testing.T) {
	e := newTestEnv(t)

	rr := e.api(http.MethodPost, "/v1/plugins/5", url.Values{"tag_type": {"section"}, "element_id": {"intro"}})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

	var resp struct {
		Fields map[string][]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []string{"The element ID `intro` is not unique for this page."}, resp.Fields["element_id"])

	assert.Equal(t, "footer", e.st.instances[5].Glossary.ElementID)
	assert.Equal(t, "footer", e.st.pages[1].Glossary.ElementIDs["5"])
}

func TestEditKeepingOwnElementID(t *testing.T) {
	e := newTestEnv(t)

	rr := e.api(http.MethodPost, "/v1/plugins/5", url.Values{"tag_type": {"article"}, "element_id": {"footer"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "article", e.st.instances[5].Glossary.String("tag_type"))

	rr = e.api(http.MethodPost, "/v1/plugins/5", url.Values{"tag_type": {"article"}, "element_id": {"page-end"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "page-end", e.st.pages[1].Glossary.ElementIDs["5"])
}

func TestButtonLinkSwitchesVariant(t *testing.T) {
	e := newTestEnv(t)

	rr := e.api(http.MethodPost, "/v1/pages/1/plugins", url.Values{
		"plugin_type":  {"ButtonPlugin"},
		"button_type":  {"btn-primary"},
		"element_id":   {"cta"},
		"link_type":    {"exturl"},
		"ext_url":      {"https://example.com"},
		"link_content": {"Go"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodePlugin(t, rr)
	assert.JSONEq(t, `{"type":"exturl","url":"https://example.com"}`, string(created.Plugin.Glossary["link"]))
	assert.JSONEq(t, `"Go"`, string(created.Plugin.Glossary["link_content"]))

	path := "/v1/plugins/" + jsonID(created.Plugin.ID)
	rr = e.api(http.MethodPost, path, url.Values{
		"button_type":  {"btn-primary"},
		"element_id":   {"cta"},
		"link_type":    {"email"},
		"ext_url":      {"https://example.com"},
		"mail_to":      {"a@b.com"},
		"link_content": {"Write"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decodePlugin(t, rr)
	assert.JSONEq(t, `{"type":"email","email":"a@b.com"}`, string(updated.Plugin.Glossary["link"]))

	rr = e.api(http.MethodPost, path, url.Values{
		"button_type":  {"btn-primary"},
		"element_id":   {"cta"},
		"link_type":    {"cmspage"},
		"cms_page":     {"2"},
		"link_content": {"About"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated = decodePlugin(t, rr)
	assert.JSONEq(t, `{"type":"cmspage","model":"cms.Page","pk":2}`, string(updated.Plugin.Glossary["link"]))

	rr = e.api(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got struct {
		Initial map[string]string `json:"initial"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "cmspage", got.Initial["link_type"])
	assert.Equal(t, "2", got.Initial["cms_page"])
	assert.Equal(t, "About", got.Initial["link_content"])
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestTextLinkWithoutSelectedPage(t *testing.T) {
	e := newTestEnv(t)

	rr := e.api(http.MethodPost, "/v1/pages/1/plugins", url.Values{
		"plugin_type":  {"TextLinkPlugin"},
		"link_type":    {"cmspage"},
		"cms_page":     {"not-a-number"},
		"link_content": {"Somewhere"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decodePlugin(t, rr)
	assert.JSONEq(t, `{"type":"cmspage"}`, string(resp.Plugin.Glossary["link"]))
	assert.NotContains(t, resp.Plugin.Glossary, "element_id")
}

func TestSharedGlossaryMakesLinkTypeOptional(t *testing.T) {
	e := newTestEnv(t)

	values := url.Values{"plugin_type": {"TextLinkPlugin"}, "link_content": {"Shared"}}
	rr := e.api(http.MethodPost, "/v1/pages/1/plugins", values)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	values.Set("shared_glossary", "1")
	rr = e.api(http.MethodPost, "/v1/pages/1/plugins", values)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decodePlugin(t, rr)
	assert.JSONEq(t, `{"type":"none"}`, string(resp.Plugin.Glossary["link"]))
}

func TestSharedGlossaryFlagFromJSON(t *testing.T) {
	e := newTestEnv(t)

	for _, flag := range []string{"false", "null"} {
		rr := e.apiJSON(http.MethodPost, "/v1/pages/1/plugins",
			`{"plugin_type":"TextLinkPlugin","values":{"link_content":"Go","shared_glossary":`+flag+`}}`)
		require.Equal(t, http.StatusUnprocessableEntity, rr.Code, flag)
		assert.Contains(t, rr.Body.String(), `"link_type"`, flag)
	}

	rr := e.apiJSON(http.MethodPost, "/v1/pages/1/plugins",
		`{"plugin_type":"TextLinkPlugin","values":{"link_content":"Go","shared_glossary":true}}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestRequestValuesFromJSON(t *testing.T) {
	pluginType, values, err := requestValues([]byte(`{"plugin_type":"ButtonPlugin","values":{
		"cms_page":12,"on":true,"off":false,"gone":null,"sharable_fields":["link","title"]}}`), "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, "ButtonPlugin", pluginType)
	assert.Equal(t, url.Values{
		"cms_page":        {"12"},
		"on":              {"true"},
		"sharable_fields": {"link", "title"},
	}, values)
}

func TestCopyRenamesElementID(t *testing.T) {
	e := newTestEnv(t)

	rr := e.api(http.MethodPost, "/v1/plugins/3/copy", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decodePlugin(t, rr)
	assert.JSONEq(t, `"intro_1"`, string(resp.Plugin.Glossary["element_id"]))
	assert.Equal(t, "intro", e.st.instances[3].Glossary.ElementID)

	rr = e.api(http.MethodPost, "/v1/plugins/3/copy?page_id=2", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp = decodePlugin(t, rr)
	assert.JSONEq(t, `"intro"`, string(resp.Plugin.Glossary["element_id"]))
	assert.Equal(t, int64(2), resp.Plugin.PageID)
}

func TestDeleteForgetsElementID(t *testing.T) {
	e := newTestEnv(t)

	rr := e.api(http.MethodDelete, "/v1/plugins/3", nil)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())
	assert.Equal(t, map[string]string{"5": "footer"}, e.st.pages[1].Glossary.ElementIDs)

	rr = e.api(http.MethodDelete, "/v1/plugins/3", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.api(http.MethodPost, "/v1/pages/1/plugins", url.Values{
		"plugin_type": {"SectionPlugin"},
		"tag_type":    {"div"},
		"element_id":  {"intro"},
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	resp := decodePlugin(t, rr)
	assert.JSONEq(t, `"intro"`, string(resp.Plugin.Glossary["element_id"]))
}

func TestListPluginsAndElementIDs(t *testing.T) {
	e := newTestEnv(t)

	rr := e.api(http.MethodGet, "/v1/pages/1/plugins", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Plugins []pluginView `json:"plugins"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Plugins, 2)
	assert.Equal(t, "Section ID: <em>intro</em>", string(list.Plugins[0].Identifier))

	rr = e.api(http.MethodGet, "/v1/pages/1/element-ids", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"page_id":1,"element_ids":{"3":"intro","5":"footer"}}`, rr.Body.String())

	rr = e.api(http.MethodGet, "/v1/pages/2/element-ids", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"page_id":2,"element_ids":{}}`, rr.Body.String())
}

func TestAPIRequiresAuthentication(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/pages/1/plugins", nil)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/pages/1/plugins", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr = httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUIPluginTreeShowsIdentifiers(t *testing.T) {
	e := newTestEnv(t)

	rr := e.web(http.MethodGet, "/ui/pages/1/plugins", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	doc, err := goquery.NewDocumentFromReader(rr.Body)
	require.NoError(t, err)
	var ids []string
	doc.Find("li.plugin a em").Each(func(_ int, s *goquery.Selection) {
		ids = append(ids, s.Text())
	})
	assert.Equal(t, []string{"intro", "footer"}, ids)
	assert.Equal(t, "Ed", doc.Find("header .editor").Text())
}

func TestUIRedirectsToLogin(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/ui/plugins/3/edit", nil)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/v1/auth/google/login", rr.Header().Get("Location"))
	var next string
	for _, c := range rr.Result().Cookies() {
		if c.Name == nextCookie {
			next = c.Value
		}
	}
	assert.Equal(t, "/ui/plugins/3/edit", next)
}

func TestUIEditFormRendersLinkFields(t *testing.T) {
	e := newTestEnv(t)
	pk := int64(2)
	g := glossary.Instance{ElementID: "cta", LinkContent: "About", Link: &glossary.Link{Type: glossary.LinkCMSPage, Model: glossary.PageModel, PK: &pk}}
	g.SetString("button_type", "btn-link")
	inst := e.st.addInstance(cms.PluginInstance{PageID: 1, PluginType: "ButtonPlugin", Glossary: g})

	rr := e.web(http.MethodGet, "/ui/plugins/"+jsonID(inst.ID)+"/edit", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	doc, err := goquery.NewDocumentFromReader(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, "cta", doc.Find("h1 em").Text())
	assert.Equal(t, "cmspage", doc.Find("#id_link_type option[selected]").AttrOr("value", ""))
	assert.Equal(t, "2", doc.Find("#id_cms_page option[selected]").AttrOr("value", ""))
	assert.Equal(t, "About us (/about/)", doc.Find("#id_cms_page option[value='2']").Text())
	assert.Equal(t, 0, doc.Find("#id_cms_page option[value='9']").Length())
	assert.Equal(t, "cta", doc.Find("#id_element_id").AttrOr("value", ""))
	assert.Equal(t, "A unique identifier for this element.", strings.TrimSpace(doc.Find(".field-element_id .help").Text()))
	assert.Equal(t, "csrf-token", doc.Find("input[name=csrf_token]").AttrOr("value", ""))
}

func TestUIEditSubmit(t *testing.T) {
	e := newTestEnv(t)

	rr := e.web(http.MethodPost, "/ui/plugins/5/edit", url.Values{
		"csrf_token": {"wrong"},
		"tag_type":   {"div"},
		"element_id": {"bottom"},
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.web(http.MethodPost, "/ui/plugins/5/edit", url.Values{
		"csrf_token": {e.csrf},
		"tag_type":   {"div"},
		"element_id": {"intro"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	doc, err := goquery.NewDocumentFromReader(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, "The element ID `intro` is not unique for this page.", doc.Find(".field-element_id .errorlist").Text())
	assert.Equal(t, "intro", doc.Find("#id_element_id").AttrOr("value", ""))

	rr = e.web(http.MethodPost, "/ui/plugins/5/edit", url.Values{
		"csrf_token": {e.csrf},
		"tag_type":   {"div"},
		"element_id": {"bottom"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/ui/pages/1/plugins", rr.Header().Get("Location"))
	assert.Equal(t, "bottom", e.st.pages[1].Glossary.ElementIDs["5"])
}

func TestUIAddPlugin(t *testing.T) {
	e := newTestEnv(t)

	rr := e.web(http.MethodGet, "/ui/pages/1/plugins/add?plugin_type=SectionPlugin", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	doc, err := goquery.NewDocumentFromReader(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, "/ui/pages/1/plugins/add?plugin_type=SectionPlugin", doc.Find("form.plugin-form").AttrOr("action", ""))

	rr = e.web(http.MethodPost, "/ui/pages/1/plugins/add?plugin_type=SectionPlugin", url.Values{
		"csrf_token": {e.csrf},
		"tag_type":   {"section"},
		"element_id": {"footer"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
	assert.Len(t, e.st.instances, 3)
	assert.Contains(t, e.st.pages[1].Glossary.ElementIDs, "101")
	assert.Equal(t, "footer_1", e.st.pages[1].Glossary.ElementIDs["101"])

	rr = e.web(http.MethodGet, "/ui/pages/1/plugins/add?plugin_type=Bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.api(http.MethodPost, "/v1/plugins/3/copy", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `cascade_element_id_resolved_total{suffix="1"} 1`)
	assert.Contains(t, rr.Body.String(), `cascade_plugin_saves_total{action="create",plugin_type="SectionPlugin"} 1`)
}
