package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/geocoder89/hotchoc/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type AuthService interface {
	Register(ctx context.Context, req user.RegisterRequest) (user.Public, error)
	Login(ctx context.Context, req user.LoginRequest) (user.LoginResult, error)
}

// AuthObserver counts auth outcomes; observability.Prom implements it.
type AuthObserver interface {
	ObserveAuth(action, result string)
}

type AuthHandler struct {
	svc     AuthService
	metrics AuthObserver
}

func NewAuthHandler(svc AuthService, metrics AuthObserver) *AuthHandler {
	return &AuthHandler{svc: svc, metrics: metrics}
}

func (h *AuthHandler) observe(action, result string) {
	if h.metrics != nil {
		h.metrics.ObserveAuth(action, result)
	}
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		h.observe("register", "invalid")
		return
	}

	u, err := h.svc.Register(ctx.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrMissingFields):
			h.observe("register", "invalid")
			RespondBadRequest(ctx, "Missing fields", nil)
		case errors.Is(err, user.ErrPasswordTooLong):
			h.observe("register", "invalid")
			RespondBadRequest(ctx, "Invalid request body", gin.H{"fields": []FieldError{{
				Field:   "password",
				Rule:    "max_bytes",
				Param:   strconv.Itoa(user.MaxPasswordBytes),
				Message: "must be at most 72 bytes",
			}}})
		case errors.Is(err, user.ErrEmailTaken):
			h.observe("register", "email_exists")
			RespondError(ctx, http.StatusBadRequest, "email_exists", "Email exists", nil)
		default:
			h.observe("register", "error")
			RespondInternal(ctx, "Could not create user", err)
		}
		return
	}

	h.observe("register", "ok")
	ctx.JSON(http.StatusOK, u)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		h.observe("login", "invalid")
		return
	}

	res, err := h.svc.Login(ctx.Request.Context(), req)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			h.observe("login", "invalid_credentials")
			RespondError(ctx, http.StatusBadRequest, "invalid_credentials", "Invalid credentials", nil)
			return
		}

		h.observe("login", "error")
		RespondInternal(ctx, "Could not log in", err)
		return
	}

	h.observe("login", "ok")
	ctx.JSON(http.StatusOK, res)
}
