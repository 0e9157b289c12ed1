package store

import "testing"

func TestUserCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)

	u, err := us.Create("alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := us.GetByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got == nil || got.ID != u.ID {
		t.Fatalf("got %+v, want id %q", got, u.ID)
	}
	if got.Name != "Alice" {
		t.Errorf("name = %q, want %q", got.Name, "Alice")
	}
}

func TestUserGetByIDNotFound(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	u, err := us.GetByID("missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u != nil {
		t.Error("expected nil for missing user")
	}
}

func TestUpsertGoogleCreatesThenReuses(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	first, err := us.UpsertGoogle("sub-1", "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.GoogleSubject == nil || *first.GoogleSubject != "sub-1" {
		t.Fatalf("google subject = %v, want sub-1", first.GoogleSubject)
	}

	second, err := us.UpsertGoogle("sub-1", "alice@work.example.com", "Alice W")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("id = %q, want %q", second.ID, first.ID)
	}
	if second.Email != "alice@work.example.com" {
		t.Errorf("email = %q, want updated email", second.Email)
	}
}

func TestUpsertGoogleLinksExistingEmail(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	existing, _ := us.Create("bob@example.com", "Bob")

	linked, err := us.UpsertGoogle("sub-bob", "bob@example.com", "Bob")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if linked.ID != existing.ID {
		t.Errorf("id = %q, want existing %q", linked.ID, existing.ID)
	}
}
