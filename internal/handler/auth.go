package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/dukerupert/taskcal/internal/auth"
	"github.com/dukerupert/taskcal/internal/middleware"
	"github.com/dukerupert/taskcal/internal/store"
)

const stateCookieName = "taskcal_oauth_state"

type AuthHandler struct {
	oauth         *oauth2.Config
	userStore     *store.UserStore
	sessionStore  *store.SessionStore
	tokenStore    *store.OAuthTokenStore
	secureCookies bool
	opts          []option.ClientOption
	logger        *slog.Logger
}

// NewAuthHandler builds the Google sign-in handler. A nil oauth config leaves
// sign-in disabled. Extra client options apply to the userinfo lookup.
func NewAuthHandler(
	cfg *oauth2.Config,
	us *store.UserStore,
	ss *store.SessionStore,
	ts *store.OAuthTokenStore,
	secureCookies bool,
	logger *slog.Logger,
	opts ...option.ClientOption,
) *AuthHandler {
	return &AuthHandler{
		oauth:         cfg,
		userStore:     us,
		sessionStore:  ss,
		tokenStore:    ts,
		secureCookies: secureCookies,
		opts:          opts,
		logger:        logger,
	}
}

func newState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Login handles GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}

	state, err := newState()
	if err != nil {
		h.logger.Error("generate oauth state", "error", err)
		internalError(w)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies || r.TLS != nil,
	})

	// Offline access with forced consent so Google returns a refresh token
	// for calendar export.
	url := h.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	http.Redirect(w, r, url, http.StatusFound)
}

// Callback handles GET /auth/google/callback
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.logger.Warn("google sign-in denied", "error", e)
		writeError(w, http.StatusUnauthorized, "sign-in was cancelled")
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		writeError(w, http.StatusBadRequest, "invalid oauth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/auth", MaxAge: -1, HttpOnly: true})

	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	ctx := r.Context()
	tok, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.logger.Warn("exchange oauth code", "error", err)
		writeError(w, http.StatusUnauthorized, "sign-in failed")
		return
	}

	opts := append([]option.ClientOption{option.WithTokenSource(h.oauth.TokenSource(ctx, tok))}, h.opts...)
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		h.logger.Error("create userinfo service", "error", err)
		internalError(w)
		return
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		h.logger.Warn("fetch google userinfo", "error", err)
		writeError(w, http.StatusUnauthorized, "sign-in failed")
		return
	}
	if info.Id == "" || info.Email == "" {
		writeError(w, http.StatusUnauthorized, "Google account has no email")
		return
	}

	user, err := h.userStore.UpsertGoogle(info.Id, info.Email, info.Name)
	if err != nil {
		h.logger.Error("upsert google user", "error", err)
		internalError(w)
		return
	}
	if err := h.tokenStore.Save(auth.TokenToModel(user.ID, tok)); err != nil {
		h.logger.Error("save oauth token", "error", err)
		internalError(w)
		return
	}

	sess, err := h.sessionStore.Create(user.ID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		internalError(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies || r.TLS != nil,
	})

	h.logger.Info("user signed in", "user_id", user.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		sess, err := h.sessionStore.GetByToken(token)
		if err != nil {
			h.logger.Error("look up session for logout", "error", err)
		} else if sess != nil {
			if err := h.sessionStore.Delete(sess.ID); err != nil {
				h.logger.Error("delete session", "session_id", sess.ID, "user_id", sess.UserID, "error", err)
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.userStore.GetByID(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get user", "error", err)
		internalError(w)
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
