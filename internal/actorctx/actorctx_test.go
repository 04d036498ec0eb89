package actorctx

import (
	"context"
	"testing"
)

func TestWithUser_RoundTrip(t *testing.T) {
	ctx := WithUser(context.Background(), "u1", "a@b.c")

	id, ok := UserIDFrom(ctx)
	if !ok || id != "u1" {
		t.Fatalf("got (%q,%v), want (u1,true)", id, ok)
	}

	email, ok := EmailFrom(ctx)
	if !ok || email != "a@b.c" {
		t.Fatalf("got (%q,%v), want (a@b.c,true)", email, ok)
	}
}

func TestUserIDFrom_EmptyContext(t *testing.T) {
	if _, ok := UserIDFrom(context.Background()); ok {
		t.Fatalf("expected no user on empty context")
	}

	if _, ok := UserIDFrom(WithUser(context.Background(), "", "")); ok {
		t.Fatalf("expected empty user id to be reported as absent")
	}
}
