package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/taskcal/internal/auth"
	"github.com/dukerupert/taskcal/internal/database"
	"github.com/dukerupert/taskcal/internal/store"
)

func setupAuthMiddlewareDB(t *testing.T) (*store.SessionStore, *store.UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewSessionStore(db, 0), store.NewUserStore(db)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustNotReach(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	})
}

func assertUnauthorized(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"error":"Unauthorized"}` {
		t.Errorf("body = %s, want {\"error\":\"Unauthorized\"}", body)
	}
}

func TestRequireAuthNoCredentials(t *testing.T) {
	ss, us := setupAuthMiddlewareDB(t)

	rec := httptest.NewRecorder()
	RequireAuth(ss, us, discardLogger())(mustNotReach(t)).ServeHTTP(rec, httptest.NewRequest("GET", "/tasks", nil))

	assertUnauthorized(t, rec)
}

func TestRequireAuthInvalidToken(t *testing.T) {
	ss, us := setupAuthMiddlewareDB(t)

	req := httptest.NewRequest("GET", "/tasks", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "invalid-token"})
	rec := httptest.NewRecorder()
	RequireAuth(ss, us, discardLogger())(mustNotReach(t)).ServeHTTP(rec, req)

	assertUnauthorized(t, rec)
}

func TestRequireAuthDeletedUser(t *testing.T) {
	ss, us := setupAuthMiddlewareDB(t)
	user, err := us.Create("gone@example.com", "Gone")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sess, err := ss.Create(user.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := us.Delete(user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	req := httptest.NewRequest("GET", "/tasks", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	RequireAuth(ss, us, discardLogger())(mustNotReach(t)).ServeHTTP(rec, req)

	assertUnauthorized(t, rec)
}

func TestRequireAuthValidCookie(t *testing.T) {
	ss, us := setupAuthMiddlewareDB(t)
	user, _ := us.Create("alice@example.com", "Alice")
	sess, _ := ss.Create(user.ID)

	var got auth.AuthContext
	handler := RequireAuth(ss, us, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/tasks", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.UserID != user.ID {
		t.Errorf("UserID = %q, want %q", got.UserID, user.ID)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email = %q, want alice@example.com", got.Email)
	}
	if got.SessionID != sess.ID {
		t.Errorf("SessionID = %d, want %d", got.SessionID, sess.ID)
	}
}

func TestRequireAuthBearer(t *testing.T) {
	ss, us := setupAuthMiddlewareDB(t)
	user, _ := us.Create("bob@example.com", "Bob")
	sess, _ := ss.Create(user.ID)

	reached := false
	handler := RequireAuth(ss, us, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = auth.UserID(r.Context()) == user.ID
	}))

	req := httptest.NewRequest("GET", "/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !reached {
		t.Error("bearer token should authenticate")
	}
}

func TestSessionTokenPrefersCookie(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")

	if got := SessionToken(req); got != "from-cookie" {
		t.Errorf("SessionToken = %q, want from-cookie", got)
	}
}

func TestRequireAuthStoreFailure(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	ss, us := store.NewSessionStore(db, 0), store.NewUserStore(db)
	user, err := us.Create("alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sess, err := ss.Create(user.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	db.Close()

	req := httptest.NewRequest("GET", "/tasks", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	RequireAuth(ss, us, discardLogger())(mustNotReach(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"error":"Internal Server Error"}` {
		t.Errorf("body = %s", body)
	}
}
