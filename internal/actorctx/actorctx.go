// Package actorctx carries the authenticated caller on a context.Context so
// code below the HTTP layer can log and attribute work without gin.
package actorctx

import "context"

type ctxKey string

const (
	keyUserID ctxKey = "user_id"
	keyEmail  ctxKey = "email"
)

func WithUser(ctx context.Context, userID, email string) context.Context {
	ctx = context.WithValue(ctx, keyUserID, userID)
	return context.WithValue(ctx, keyEmail, email)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)

	return v, ok && v != ""
}

func EmailFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyEmail).(string)

	return v, ok && v != ""
}
