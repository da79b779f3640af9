package arrears

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"casa-arrears/pkg/config"
	"casa-arrears/pkg/errutil"
	"casa-arrears/pkg/health"
	"casa-arrears/pkg/runlease"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const schedulerSecretHeader = "X-Scheduler-Secret"

// Handler exposes the reconciliation trigger. The run operates over all
// active tenancies, so the request carries no body; callers are either the
// platform scheduler (shared secret header) or an administrator (bearer
// token with the admin role).
type Handler struct {
	reconciler *Reconciler
	cfg        *config.Config
}

type HandlerParams struct {
	fx.In
	Reconciler *Reconciler
	Config     *config.Config
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		reconciler: p.Reconciler,
		cfg:        p.Config,
	}
}

func RegisterRoutes(engine *gin.Engine, h *Handler, hc health.HealthService) {
	engine.GET("/healthz", hc.Liveness)
	engine.GET("/readyz", hc.Readiness)

	v1 := engine.Group("/v1")
	v1.POST("/arrears/reconcile", h.Reconcile)
}

func (h *Handler) Reconcile(c *gin.Context) {
	if err := h.authorize(c.Request); err != nil {
		c.Error(err)
		return
	}

	summary, err := h.reconciler.Run(c.Request.Context())
	if errors.Is(err, runlease.ErrHeld) {
		c.Error(errutil.Conflict("a reconciliation run is already in progress"))
		return
	}
	if err != nil {
		zap.L().Error("reconciliation run failed", zap.Error(err))
		c.Error(errutil.Internal("reconciliation run failed"))
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) authorize(req *http.Request) error {
	if secret := req.Header.Get(schedulerSecretHeader); secret != "" {
		if h.cfg.Scheduler.Secret != "" &&
			subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.Scheduler.Secret)) == 1 {
			return nil
		}
		return errutil.Unauthorized("invalid scheduler secret")
	}

	authz := req.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return errutil.Unauthorized("missing credentials")
	}

	return h.verifyAdminToken(strings.TrimPrefix(authz, "Bearer "))
}

type tokenClaims struct {
	jwt.Claims
	Role string `json:"role"`
}

func (h *Handler) verifyAdminToken(raw string) error {
	if h.cfg.Auth.JWTSecret == "" {
		return errutil.Unauthorized("admin tokens not configured")
	}

	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return errutil.Unauthorized("malformed token", errutil.WithErr(err))
	}

	var claims tokenClaims
	if err := tok.Claims([]byte(h.cfg.Auth.JWTSecret), &claims); err != nil {
		return errutil.Unauthorized("invalid token signature", errutil.WithErr(err))
	}

	if err := claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return errutil.Unauthorized("expired token", errutil.WithErr(err))
	}

	if claims.Role != "admin" {
		return errutil.Unauthorized("admin role required")
	}

	return nil
}
