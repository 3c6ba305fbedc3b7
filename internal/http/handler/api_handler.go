package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lumenlearn/growthloop/internal/app/model"
	"github.com/lumenlearn/growthloop/internal/app/service"
	infraPrometheus "github.com/lumenlearn/growthloop/internal/infra/prometheus"
	"go.uber.org/zap"
)

// ActorHeader carries the authenticated actor id, set by the auth layer
// upstream of this service.
const ActorHeader = "X-Actor-ID"

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger       *zap.Logger
	Registry     *service.LinkRegistry
	Assigner     *service.ExperimentAssigner
	Orchestrator *service.LoopOrchestrator
	Composer     *service.PersonalizationComposer
	Events       service.EventSink
}

// APIHandler implements the growth API endpoints.
type APIHandler struct {
	logger       *zap.Logger
	registry     *service.LinkRegistry
	assigner     *service.ExperimentAssigner
	orchestrator *service.LoopOrchestrator
	composer     *service.PersonalizationComposer
	events       service.EventSink
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:       logger,
		registry:     deps.Registry,
		assigner:     deps.Assigner,
		orchestrator: deps.Orchestrator,
		composer:     deps.Composer,
		events:       deps.Events,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Post("/", h.CreateLink)
			links.Get("/", h.ListLinks)
			links.Get("/quota", h.Quota)
		}
		api.Post("/experiments/assign", h.AssignExperiment)
		api.Post("/loops/next", h.NextLoop)
		api.Post("/events", h.TrackEvent)
	}
}

// CreateLinkRequest represents the request body for minting a smart link.
type CreateLinkRequest struct {
	Loop   string            `json:"loop"`
	Params map[string]string `json:"params,omitempty"`
}

// CreateLinkResponse represents a freshly minted smart link.
type CreateLinkResponse struct {
	Code      string    `json:"code"`
	URL       string    `json:"url"`
	Loop      string    `json:"loop"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateLink handles POST /api/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	actorID := c.Get(ActorHeader)
	if actorID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing actor identity",
		})
	}

	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	loop, ok := model.ParseLoop(req.Loop)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown loop",
			"loop":  req.Loop,
		})
	}

	link, shareURL, err := h.registry.CreateLink(h.ctx(c), actorID, loop, req.Params)
	if err != nil {
		return h.createLinkError(c, err, actorID)
	}

	infraPrometheus.LinksMinted.WithLabelValues(string(link.Loop)).Inc()
	return c.Status(fiber.StatusCreated).JSON(CreateLinkResponse{
		Code:      link.Code,
		URL:       shareURL,
		Loop:      string(link.Loop),
		ExpiresAt: link.ExpiresAt,
	})
}

// ListLinks handles GET /api/links
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	actorID := c.Get(ActorHeader)
	if actorID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing actor identity",
		})
	}

	limit := 20
	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 100 {
		limit = parsed
	}

	links, err := h.registry.Links(h.ctx(c), actorID, limit)
	if err != nil {
		h.logger.Error("failed to list links", zap.Error(err), zap.String("actor_id", actorID))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list links",
		})
	}

	response := make([]CreateLinkResponse, len(links))
	for i, link := range links {
		response[i] = CreateLinkResponse{
			Code:      link.Code,
			URL:       h.registry.ShareURL(link.Code),
			Loop:      string(link.Loop),
			ExpiresAt: link.ExpiresAt,
		}
	}

	return c.JSON(fiber.Map{
		"links": response,
		"count": len(response),
	})
}

// Quota handles GET /api/links/quota
func (h *APIHandler) Quota(c *fiber.Ctx) error {
	actorID := c.Get(ActorHeader)
	if actorID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing actor identity",
		})
	}

	quota, err := h.registry.Quota(h.ctx(c), actorID)
	if err != nil {
		h.logger.Error("failed to read quota", zap.Error(err), zap.String("actor_id", actorID))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to read quota",
		})
	}

	return c.JSON(quota)
}

// AssignExperimentRequest carries an experiment lookup.
type AssignExperimentRequest struct {
	ActorID    string                   `json:"actor_id,omitempty"`
	Experiment string                   `json:"experiment"`
	Config     service.ExperimentConfig `json:"config"`
}

// AssignExperiment handles POST /api/experiments/assign
func (h *APIHandler) AssignExperiment(c *fiber.Ctx) error {
	var req AssignExperimentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	actorID := req.ActorID
	if actorID == "" {
		actorID = c.Get(ActorHeader)
	}
	if actorID == "" || req.Experiment == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "actor_id and experiment are required",
		})
	}

	assignment, err := h.assigner.Assign(actorID, req.Experiment, req.Config)
	if err != nil {
		if errors.Is(err, service.ErrNoVariants) || errors.Is(err, service.ErrBadTrafficSplits) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("failed to assign experiment", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to assign experiment",
		})
	}

	return c.JSON(assignment)
}

// NextLoopRequest asks which loop to present at a UI moment.
type NextLoopRequest struct {
	Trigger       string             `json:"trigger"`
	Role          string             `json:"role"`
	Subject       string             `json:"subject,omitempty"`
	CooldownHours map[string]float64 `json:"cooldown_hours,omitempty"`
}

// NextLoopResponse bundles the decision, share copy, and the minted link.
type NextLoopResponse struct {
	Decision    service.Decision    `json:"decision"`
	Composition service.Composition `json:"composition"`
	Link        CreateLinkResponse  `json:"link"`
}

// NextLoop handles POST /api/loops/next: orchestrate, compose, and mint the
// link for the chosen loop in one round trip.
func (h *APIHandler) NextLoop(c *fiber.Ctx) error {
	actorID := c.Get(ActorHeader)
	if actorID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing actor identity",
		})
	}

	var req NextLoopRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	role, ok := model.ParseRole(req.Role)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown role",
			"role":  req.Role,
		})
	}

	elapsed := make(map[model.Loop]float64, len(req.CooldownHours))
	for raw, hours := range req.CooldownHours {
		if loop, ok := model.ParseLoop(raw); ok {
			elapsed[loop] = hours
		}
	}

	decision := h.orchestrator.Next(req.Trigger, role, req.Subject, elapsed)
	composition := h.composer.Compose(req.Trigger, role, req.Subject, decision.Loop)

	link, shareURL, err := h.registry.CreateLink(h.ctx(c), actorID, decision.Loop, composition.DeepLinkParams)
	if err != nil {
		return h.createLinkError(c, err, actorID)
	}

	infraPrometheus.LinksMinted.WithLabelValues(string(link.Loop)).Inc()
	return c.JSON(NextLoopResponse{
		Decision:    decision,
		Composition: composition,
		Link: CreateLinkResponse{
			Code:      link.Code,
			URL:       shareURL,
			Loop:      string(link.Loop),
			ExpiresAt: link.ExpiresAt,
		},
	})
}

// TrackEventRequest is the ingestion shape for growth funnel events.
type TrackEventRequest struct {
	Name      string          `json:"name"`
	VisitorID string          `json:"visitor_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// TrackEvent handles POST /api/events. Acceptance is best-effort: the event
// is published and the response never waits on downstream delivery.
func (h *APIHandler) TrackEvent(c *fiber.Ctx) error {
	var req TrackEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	switch req.Name {
	case model.EventLinkOpened, model.EventInviteSent, model.EventFriendJoined, model.EventFirstValue:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown event name",
			"name":  req.Name,
		})
	}

	if h.events != nil {
		name, visitorID, payload := req.Name, req.VisitorID, req.Payload
		go func() {
			if err := h.events.Publish(name, visitorID, payload); err != nil {
				h.logger.Warn("failed to publish tracking event",
					zap.Error(err),
					zap.String("name", name))
			}
		}()
	}

	infraPrometheus.EventsPublished.WithLabelValues(req.Name).Inc()
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandler) createLinkError(c *fiber.Ctx, err error, actorID string) error {
	var rateErr *service.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		infraPrometheus.QuotaRejections.Inc()
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":     "daily link limit reached",
			"limit":     rateErr.Limit,
			"remaining": 0,
			"reset_at":  rateErr.ResetAt,
		})
	case errors.Is(err, service.ErrUnknownLoop), errors.Is(err, service.ErrInvalidActor), errors.Is(err, service.ErrParamsTooLarge):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		h.logger.Error("failed to create link", zap.Error(err), zap.String("actor_id", actorID))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create link",
		})
	}
}

func (h *APIHandler) ctx(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
