package admin

import (
	"context"
	"sort"
	"strconv"
	"time"

	"cascade/internal/cms"
	"cascade/internal/elementid"
	"cascade/internal/glossary"
	"cascade/internal/store"
)

// memStore keeps pages, instances, editors and sessions in maps.
type memStore struct {
	editors   map[string]store.Editor
	sessions  map[string]store.Session
	pages     map[int64]cms.Page
	instances map[int64]cms.PluginInstance
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{
		editors:   map[string]store.Editor{},
		sessions:  map[string]store.Session{},
		pages:     map[int64]cms.Page{},
		instances: map[int64]cms.PluginInstance{},
		nextID:    100,
	}
}

func (m *memStore) addPage(p cms.Page) {
	m.pages[p.ID] = p
}

func (m *memStore) addInstance(inst cms.PluginInstance) cms.PluginInstance {
	if inst.ID == 0 {
		m.nextID++
		inst.ID = m.nextID
	}
	m.instances[inst.ID] = inst
	return inst
}

func (m *memStore) UpsertEditor(_ context.Context, sub, email, name, avatar string) (store.Editor, error) {
	for _, e := range m.editors {
		if e.GoogleSub == sub {
			e.Email, e.Name, e.AvatarURL = email, name, avatar
			m.editors[e.ID] = e
			return e, nil
		}
	}
	e := store.Editor{ID: "editor-" + sub, GoogleSub: sub, Email: email, Name: name, AvatarURL: avatar}
	m.editors[e.ID] = e
	return e, nil
}

func (m *memStore) GetEditorBySub(_ context.Context, sub string) (store.Editor, error) {
	for _, e := range m.editors {
		if e.GoogleSub == sub {
			return e, nil
		}
	}
	return store.Editor{}, cms.ErrNotFound
}

func (m *memStore) GetEditorByID(_ context.Context, id string) (store.Editor, error) {
	e, ok := m.editors[id]
	if !ok {
		return store.Editor{}, cms.ErrNotFound
	}
	return e, nil
}

func (m *memStore) CreateSession(_ context.Context, editorID, csrfToken string, ttl time.Duration) (store.Session, error) {
	sess := store.Session{
		ID:        "session-" + strconv.Itoa(len(m.sessions)+1),
		EditorID:  editorID,
		CSRFToken: csrfToken,
		ExpiresAt: time.Now().Add(ttl),
	}
	m.sessions[sess.ID] = sess
	return sess, nil
}

func (m *memStore) GetSession(_ context.Context, id string) (store.Session, error) {
	sess, ok := m.sessions[id]
	if !ok || time.Now().After(sess.ExpiresAt) {
		return store.Session{}, cms.ErrNotFound
	}
	return sess, nil
}

func (m *memStore) GetPage(_ context.Context, id int64) (cms.Page, error) {
	p, ok := m.pages[id]
	if !ok {
		return cms.Page{}, cms.ErrNotFound
	}
	return p, nil
}

func (m *memStore) ListInstances(_ context.Context, pageID int64) ([]cms.PluginInstance, error) {
	var out []cms.PluginInstance
	for _, inst := range m.instances {
		if inst.PageID == pageID {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetInstance(_ context.Context, id int64) (cms.PluginInstance, error) {
	inst, ok := m.instances[id]
	if !ok {
		return cms.PluginInstance{}, cms.ErrNotFound
	}
	inst.Glossary = inst.Glossary.Clone()
	return inst, nil
}

func (m *memStore) CreateInstance(_ context.Context, inst cms.PluginInstance) (cms.PluginInstance, error) {
	inst.ID = 0
	inst.Position = len(m.instances) + 1
	return m.addInstance(inst), nil
}

func (m *memStore) DeleteInstance(_ context.Context, id int64) (cms.PluginInstance, error) {
	inst, ok := m.instances[id]
	if !ok {
		return cms.PluginInstance{}, cms.ErrNotFound
	}
	delete(m.instances, id)
	return inst, nil
}

func (m *memStore) SaveInstanceGlossary(_ context.Context, inst cms.PluginInstance) error {
	cur, ok := m.instances[inst.ID]
	if !ok {
		return cms.ErrNotFound
	}
	cur.Glossary = inst.Glossary.Clone()
	m.instances[inst.ID] = cur
	return nil
}

func (m *memStore) PageGlossary(_ context.Context, pageID int64) (glossary.Page, error) {
	p, ok := m.pages[pageID]
	if !ok {
		return glossary.Page{}, cms.ErrNotFound
	}
	return p.Glossary, nil
}

// memPageTx writes straight through to the store.
type memPageTx struct {
	m      *memStore
	pageID int64
}

func (tx memPageTx) SaveInstanceGlossary(ctx context.Context, inst cms.PluginInstance) error {
	return tx.m.SaveInstanceGlossary(ctx, inst)
}

func (tx memPageTx) InstanceKeys(context.Context) ([]string, error) {
	var keys []string
	for _, inst := range tx.m.instances {
		if inst.PageID == tx.pageID {
			keys = append(keys, inst.Key())
		}
	}
	return keys, nil
}

func (m *memStore) UpdatePageGlossary(_ context.Context, pageID int64, fn func(elementid.PageTx, *glossary.Page) error) error {
	p, ok := m.pages[pageID]
	if !ok {
		return cms.ErrNotFound
	}
	g := glossary.Page{ElementIDs: map[string]string{}}
	for k, v := range p.Glossary.ElementIDs {
		g.ElementIDs[k] = v
	}
	if err := fn(memPageTx{m: m, pageID: pageID}, &g); err != nil {
		return err
	}
	p.Glossary = g
	m.pages[pageID] = p
	return nil
}

func (m *memStore) DraftPages(_ context.Context, siteID int64) ([]cms.Page, error) {
	var out []cms.Page
	for _, p := range m.pages {
		if p.SiteID == siteID && p.IsDraft {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) PageExists(_ context.Context, model string, pk int64) (bool, error) {
	if model != glossary.PageModel {
		return false, nil
	}
	_, ok := m.pages[pk]
	return ok, nil
}
