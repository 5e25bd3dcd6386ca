package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"

	"cascade/internal/auth"
	"cascade/internal/cms"
	"cascade/internal/config"
	"cascade/internal/elementid"
	"cascade/internal/link"
	"cascade/internal/logger"
	"cascade/internal/metrics"
	"cascade/internal/plugin"
	"cascade/internal/ratelimit"
	"cascade/internal/store"
	"cascade/internal/ui"
)

const sessionCookie = "cascade_session"

// Store is the persistence the admin handlers need.
type Store interface {
	UpsertEditor(ctx context.Context, sub, email, name, avatar string) (store.Editor, error)
	GetEditorBySub(ctx context.Context, sub string) (store.Editor, error)
	GetEditorByID(ctx context.Context, id string) (store.Editor, error)
	CreateSession(ctx context.Context, editorID, csrfToken string, ttl time.Duration) (store.Session, error)
	GetSession(ctx context.Context, id string) (store.Session, error)

	GetPage(ctx context.Context, id int64) (cms.Page, error)
	ListInstances(ctx context.Context, pageID int64) ([]cms.PluginInstance, error)
	GetInstance(ctx context.Context, id int64) (cms.PluginInstance, error)
	CreateInstance(ctx context.Context, inst cms.PluginInstance) (cms.PluginInstance, error)
	DeleteInstance(ctx context.Context, id int64) (cms.PluginInstance, error)
	SaveInstanceGlossary(ctx context.Context, inst cms.PluginInstance) error

	elementid.Documents
	link.Directory
}

type Server struct {
	cfg      config.Config
	store    Store
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	renderer *ui.Renderer
	metrics  *metrics.Metrics
	catalog  *plugin.Catalog
	enforcer *elementid.Enforcer
	oauthCfg *oauth2.Config

	randomStringFn    func(int) (string, error)
	oauthExchangeFn   func(context.Context, string) (*oauth2.Token, error)
	idTokenValidateFn func(context.Context, string, string) (*idtoken.Payload, error)
}

func New(cfg config.Config, st Store, limiter *ratelimit.Limiter, log *slog.Logger, renderer *ui.Renderer, m *metrics.Metrics, catalog *plugin.Catalog) *Server {
	if m == nil {
		m = metrics.New()
	}
	if catalog == nil {
		catalog = plugin.DefaultCatalog()
	}
	s := &Server{
		cfg:      cfg,
		store:    st,
		limiter:  limiter,
		logger:   log,
		renderer: renderer,
		metrics:  m,
		catalog:  catalog,
		enforcer: elementid.NewEnforcer(st, log, m),
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.GoogleWebClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  strings.TrimRight(cfg.PublicBaseURL, "/") + "/v1/auth/google/callback",
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		randomStringFn:    auth.RandomString,
		idTokenValidateFn: idtoken.Validate,
	}
	s.oauthExchangeFn = func(ctx context.Context, code string) (*oauth2.Token, error) {
		return s.oauthCfg.Exchange(ctx, code)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(AccessLog(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.cors)
		r.Get("/auth/google/login", s.handleGoogleLogin)
		r.Get("/auth/google/callback", s.handleGoogleCallback)
		r.Post("/auth/token/exchange", s.handleTokenExchange)

		r.Route("/pages/{pageID}", func(r chi.Router) {
			r.Get("/plugins", s.requireAuth(s.handleListPlugins))
			r.Post("/plugins", s.requireAuth(s.handleCreatePlugin))
			r.Get("/element-ids", s.requireAuth(s.handleElementIDs))
		})
		r.Route("/plugins/{id}", func(r chi.Router) {
			r.Get("/", s.requireAuth(s.handleGetPlugin))
			r.Post("/", s.requireAuth(s.handleUpdatePlugin))
			r.Delete("/", s.requireAuth(s.handleDeletePlugin))
			r.Post("/copy", s.requireAuth(s.handleCopyPlugin))
		})
	})

	r.Route("/ui", func(r chi.Router) {
		r.Get("/pages/{pageID}/plugins", s.requireWeb(s.handleUIPlugins))
		r.Get("/pages/{pageID}/plugins/add", s.requireWeb(s.handleUIAddPlugin))
		r.Post("/pages/{pageID}/plugins/add", s.requireWeb(s.handleUIAddPlugin))
		r.Get("/plugins/{id}/edit", s.requireWeb(s.handleUIEditPlugin))
		r.Post("/plugins/{id}/edit", s.requireWeb(s.handleUIEditPlugin))
	})

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.checkCSRF(r); err != nil {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "csrf"})
			return
		}
		editor, ok := s.authenticate(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if r.Method != http.MethodGet && s.limiter != nil && !s.limiter.Allow(editor.ID) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limited"})
			return
		}
		next(w, r.WithContext(s.editorContext(r.Context(), editor)))
	}
}

func (s *Server) requireWeb(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, editor, ok := s.webSession(r)
		if !ok {
			if r.Method == http.MethodGet {
				http.SetCookie(w, &http.Cookie{Name: nextCookie, Value: r.URL.Path, Path: "/", HttpOnly: true, MaxAge: 300})
			}
			http.Redirect(w, r, "/v1/auth/google/login", http.StatusFound)
			return
		}
		if r.Method == http.MethodPost {
			if r.PostFormValue("csrf_token") != sess.CSRFToken {
				http.Error(w, "csrf", http.StatusForbidden)
				return
			}
			if s.limiter != nil && !s.limiter.Allow(editor.ID) {
				http.Error(w, "rate limited", http.StatusTooManyRequests)
				return
			}
		}
		ctx := s.editorContext(r.Context(), toAuthEditor(editor))
		ctx = context.WithValue(ctx, csrfKey, sess.CSRFToken)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) editorContext(ctx context.Context, editor auth.Editor) context.Context {
	ctx = auth.ContextWithEditor(ctx, editor)
	return logger.WithContext(ctx, logger.WithEditorID(s.log(ctx), editor.ID))
}

// log returns the request scoped logger.
func (s *Server) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.logger)
}

func toAuthEditor(e store.Editor) auth.Editor {
	return auth.Editor{ID: e.ID, GoogleSub: e.GoogleSub, Email: e.Email, Name: e.Name, AvatarURL: e.AvatarURL}
}

func (s *Server) authenticate(r *http.Request) (auth.Editor, bool) {
	// Bearer tokens take precedence for API clients
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		token := strings.TrimPrefix(authz, "Bearer ")
		editorID, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			return auth.Editor{}, false
		}
		e, err := s.store.GetEditorByID(r.Context(), editorID)
		if err != nil {
			return auth.Editor{}, false
		}
		return toAuthEditor(e), true
	}
	_, e, ok := s.webSession(r)
	if ok {
		return toAuthEditor(e), true
	}
	return auth.Editor{}, false
}

func (s *Server) webSession(r *http.Request) (store.Session, store.Editor, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" || s.store == nil {
		return store.Session{}, store.Editor{}, false
	}
	sess, err := s.store.GetSession(r.Context(), cookie.Value)
	if err != nil {
		return store.Session{}, store.Editor{}, false
	}
	e, err := s.store.GetEditorByID(r.Context(), sess.EditorID)
	if err != nil {
		return store.Session{}, store.Editor{}, false
	}
	return sess, e, true
}

func (s *Server) csrfFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(csrfKey).(string); ok {
		return v
	}
	return ""
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkCSRF(r *http.Request) error {
	if r.Method == http.MethodGet || r.Method == http.MethodOptions {
		return nil
	}
	if !strings.HasPrefix(r.URL.Path, "/v1/") {
		return nil
	}
	// Only enforce for session-based web requests
	if r.Header.Get("Authorization") != "" {
		return nil
	}
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || s.store == nil {
		return errors.New("missing session")
	}
	sess, err := s.store.GetSession(r.Context(), cookie.Value)
	if err != nil {
		return errors.New("missing session")
	}
	if r.Header.Get("X-CSRF-Token") != sess.CSRFToken {
		return errors.New("csrf")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseID(v string) (int64, bool) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
