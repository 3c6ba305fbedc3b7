package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lumenlearn/growthloop/internal/app/model"
	"github.com/lumenlearn/growthloop/internal/app/repository"
	"github.com/lumenlearn/growthloop/internal/app/service"
	infraPrometheus "github.com/lumenlearn/growthloop/internal/infra/prometheus"
	"go.uber.org/zap"
)

const (
	// AttributionCookie carries the attribution context across the guest session.
	AttributionCookie = "gl_attr"
	// VisitorCookie carries the long-lived anonymous visitor identifier.
	VisitorCookie = "gl_vid"

	attributionTTL = 7 * 24 * time.Hour
	visitorTTL     = 365 * 24 * time.Hour
)

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger      *zap.Logger
	Registry    *service.LinkRegistry
	Attribution *service.AttributionCarrier
	AppURL      string
}

// RedirectHandler resolves smart links into the product with attribution attached.
type RedirectHandler struct {
	logger      *zap.Logger
	registry    *service.LinkRegistry
	attribution *service.AttributionCarrier
	appURL      string
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:      logger,
		registry:    deps.Registry,
		attribution: deps.Attribution,
		appURL:      deps.AppURL,
	}
}

// Register wires redirect routes onto the provided router.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/r/:code", h.Resolve)
}

// Health is a simple root endpoint so we know the service is running.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "growthloop",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /r/:code: verify the link, attach attribution cookies,
// emit the opened event, and send the visitor into the product.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing link code",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	link, err := h.registry.Resolve(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			infraPrometheus.LinksResolved.WithLabelValues("invalid").Inc()
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "invalid or expired link",
			})
		}
		h.logger.Error("failed to resolve link", zap.Error(err), zap.String("code", code))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	attr := service.AttributionContext{
		InviterID:     link.InviterID,
		Loop:          link.Loop,
		SmartLinkCode: link.Code,
		UTMSource:     c.Query("utm_source"),
		UTMMedium:     c.Query("utm_medium"),
		UTMCampaign:   c.Query("utm_campaign"),
	}

	if encoded, err := h.attribution.Encode(attr); err != nil {
		h.logger.Error("failed to encode attribution cookie", zap.Error(err))
	} else {
		c.Cookie(&fiber.Cookie{
			Name:     AttributionCookie,
			Value:    url.QueryEscape(encoded),
			Expires:  time.Now().Add(attributionTTL),
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}

	visitorID := c.Cookies(VisitorCookie)
	if visitorID == "" {
		visitorID = h.attribution.IssueVisitorID()
		c.Cookie(&fiber.Cookie{
			Name:     VisitorCookie,
			Value:    visitorID,
			Expires:  time.Now().Add(visitorTTL),
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}

	h.attribution.TrackOpened(attr, visitorID, service.OpenedMeta{
		IP:        c.IP(),
		UserAgent: c.Get("User-Agent"),
		Referrer:  c.Get("Referer"),
	})

	infraPrometheus.LinksResolved.WithLabelValues("ok").Inc()
	h.logger.Debug("redirecting smart link",
		zap.String("code", code),
		zap.String("loop", string(link.Loop)))
	return c.Redirect(h.deepLink(link), fiber.StatusFound)
}

// deepLink builds the product URL the verified visitor lands on.
func (h *RedirectHandler) deepLink(link *model.SmartLink) string {
	q := url.Values{}
	q.Set("ref", link.Code)
	q.Set("loop", string(link.Loop))

	var params map[string]string
	if len(link.Params) > 0 {
		if err := json.Unmarshal(link.Params, &params); err == nil {
			for k, v := range params {
				q.Set(k, v)
			}
		}
	}

	return strings.TrimRight(h.appURL, "/") + "/welcome?" + q.Encode()
}
