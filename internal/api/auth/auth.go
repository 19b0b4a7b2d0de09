package auth

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"devplan/internal/gateway"
	"devplan/internal/model"
	"devplan/internal/pkg/metrics"
	"devplan/internal/pkg/ratelimit"
	"devplan/internal/store"

	"github.com/gin-gonic/gin"
)

// gin 上下文中的键，由 Access Guard 写入。
const (
	ContextUserID      = "userID"
	ContextEmail       = "email"
	ContextTokenID     = "jti"
	ContextTokenExpiry = "tokenExpiresAt"
)

// ProfileStore 读写用户档案。
type ProfileStore interface {
	CreateProfile(ctx context.Context, userID, fullName string) error
	GetProfile(ctx context.Context, userID string) (model.UserProfile, error)
}

// Revoker 吊销会话 Token。
type Revoker interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
}

// Handler 提供注册、登录、当前用户与注销接口。
type Handler struct {
	identity gateway.Identity
	profiles ProfileStore
	tokens   *TokenService
	limiter  ratelimit.Limiter
	revoker  Revoker
	logger   *slog.Logger
}

// NewHandler 创建 Auth Handler。limiter 与 revoker 可以为 nil。
func NewHandler(identity gateway.Identity, profiles ProfileStore, tokens *TokenService, limiter ratelimit.Limiter, revoker Revoker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		identity: identity,
		profiles: profiles,
		tokens:   tokens,
		limiter:  limiter,
		revoker:  revoker,
		logger:   logger,
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
}

// Register 在身份提供方创建账号并直接返回 Token。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if !h.allow(c, "register:"+c.ClientIP()) {
		return
	}

	account, err := h.identity.SignUp(c.Request.Context(), email, req.Password)
	if err != nil {
		if errors.Is(err, gateway.ErrAccountExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		h.logger.Error("sign up failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		return
	}

	if name := strings.TrimSpace(req.FullName); name != "" && h.profiles != nil {
		if err := h.profiles.CreateProfile(c.Request.Context(), account.ID, name); err != nil {
			h.logger.Warn("create profile failed", slog.String("user_id", account.ID), slog.String("error", err.Error()))
		}
	}

	h.logger.Info("user registered", slog.String("user_id", account.ID))
	h.respondToken(c, http.StatusCreated, account)
}

// Login 校验凭证并返回 JWT。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if !h.allow(c, "login:"+c.ClientIP()+":"+email) {
		return
	}

	account, err := h.identity.SignIn(c.Request.Context(), email, req.Password)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.logger.Error("sign in failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	h.logger.Info("user logged in", slog.String("user_id", account.ID))
	h.respondToken(c, http.StatusOK, account)
}

// Me 返回当前用户档案；档案不存在时只返回 id 与 email。
func (h *Handler) Me(c *gin.Context) {
	userID := c.GetString(ContextUserID)
	email := c.GetString(ContextEmail)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	resp := gin.H{"id": userID, "email": email, "full_name": nil}
	if h.profiles == nil {
		c.JSON(http.StatusOK, resp)
		return
	}
	profile, err := h.profiles.GetProfile(c.Request.Context(), userID)
	switch {
	case err == nil:
		resp["full_name"] = profile.FullName
		resp["created_at"] = profile.CreatedAt
	case errors.Is(err, store.ErrNotFound):
	default:
		h.logger.Warn("load profile failed", slog.String("user_id", userID), slog.String("error", err.Error()))
	}
	c.JSON(http.StatusOK, resp)
}

// Logout 吊销当前 Token（未启用吊销时仅返回成功）。
func (h *Handler) Logout(c *gin.Context) {
	jti := c.GetString(ContextTokenID)
	expiresAt := c.GetTime(ContextTokenExpiry)
	if h.revoker != nil && jti != "" {
		if err := h.revoker.Revoke(c.Request.Context(), jti, expiresAt); err != nil {
			h.logger.Error("revoke token failed", slog.String("user_id", c.GetString(ContextUserID)), slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
			return
		}
		metrics.TokensRevokedTotal.Inc()
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) respondToken(c *gin.Context, status int, account gateway.Account) {
	token, _, err := h.tokens.Issue(account.ID, map[string]any{"email": account.Email})
	if err != nil {
		h.logger.Error("sign token failed", slog.String("user_id", account.ID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}
	c.JSON(status, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      account.ID,
		Email:       account.Email,
	})
}

// allow 执行限流；限流器出错时放行。
func (h *Handler) allow(c *gin.Context, key string) bool {
	if h.limiter == nil {
		return true
	}
	ok, retryAfter, err := h.limiter.Allow(c.Request.Context(), key)
	if err != nil {
		h.logger.Warn("rate limiter failed", slog.String("error", err.Error()))
		return true
	}
	if ok {
		return true
	}
	metrics.LoginRateLimitedTotal.Inc()
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests", "retry_after": secs})
	return false
}
