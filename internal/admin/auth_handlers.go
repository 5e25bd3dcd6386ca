package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"cascade/internal/auth"
	"cascade/internal/cms"
	"cascade/internal/config"
)

// nextCookie remembers the admin page an editor asked for before logging in.
const nextCookie = "login_next"

func (s *Server) secureCookies() bool {
	return strings.HasPrefix(s.cfg.PublicBaseURL, "https://")
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := s.randomStringFn(16)
	if err != nil {
		http.Error(w, "failed", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secureCookies(),
		MaxAge:   300,
	})
	http.Redirect(w, r, s.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("oauth_state")
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	token, err := s.oauthExchangeFn(r.Context(), code)
	if err != nil {
		http.Error(w, "exchange failed", http.StatusBadRequest)
		return
	}
	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		http.Error(w, "missing id_token", http.StatusBadRequest)
		return
	}
	payload, err := s.idTokenValidateFn(r.Context(), idToken, s.cfg.GoogleWebClientID)
	if err != nil || payload == nil || payload.Subject == "" {
		http.Error(w, "invalid id_token", http.StatusUnauthorized)
		return
	}

	email, _ := payload.Claims["email"].(string)
	name, _ := payload.Claims["name"].(string)
	avatar, _ := payload.Claims["picture"].(string)

	editor, err := s.store.UpsertEditor(r.Context(), payload.Subject, email, name, avatar)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	csrf, err := s.randomStringFn(24)
	if err != nil {
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	sess, err := s.store.CreateSession(r.Context(), editor.ID, csrf, config.SessionTTL())
	if err != nil {
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secureCookies(),
		MaxAge:   int(config.SessionTTL().Seconds()),
	})
	http.SetCookie(w, &http.Cookie{Name: "oauth_state", Value: "", Path: "/", MaxAge: -1})
	s.log(r.Context()).Info("editor_login", slog.String("editor_id", editor.ID))

	target := "/ui/pages/1/plugins"
	if next, err := r.Cookie(nextCookie); err == nil && strings.HasPrefix(next.Value, "/ui/") {
		target = next.Value
	}
	http.SetCookie(w, &http.Cookie{Name: nextCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, target, http.StatusFound)
}

// handleTokenExchange trades a Google id token of a registered editor for an API token.
func (s *Server) handleTokenExchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	payload, err := s.idTokenValidateFn(r.Context(), req.IDToken, s.cfg.GoogleAPIClientID)
	if err != nil || payload == nil || payload.Subject == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	editor, err := s.store.GetEditorBySub(r.Context(), payload.Subject)
	if err != nil {
		if errors.Is(err, cms.ErrNotFound) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "editor_not_registered"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "db_error"})
		return
	}

	token, exp, err := auth.IssueToken(s.cfg.JWTSecret, editor.ID, 24*time.Hour)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token_error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_in": exp - time.Now().Unix(),
	})
}
