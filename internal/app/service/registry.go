package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/lumenlearn/growthloop/internal/app/model"
	"github.com/lumenlearn/growthloop/internal/app/repository"
	"go.uber.org/zap"
)

const (
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	maxCodeAttempts  = 5
	maxParamCount    = 16
	maxParamValueLen = 256
)

var (
	// ErrInvalidActor signals an empty or oversized actor id.
	ErrInvalidActor = errors.New("invalid actor id")

	// ErrUnknownLoop signals a loop outside the closed set.
	ErrUnknownLoop = errors.New("unknown loop")

	// ErrParamsTooLarge signals a parameter map beyond the accepted size.
	ErrParamsTooLarge = errors.New("link params too large")

	// ErrCodeSpaceExhausted signals that code generation kept colliding.
	// With 62^10 codes this should never fire; alert if it does.
	ErrCodeSpaceExhausted = errors.New("exhausted link code generation attempts")
)

// RegistryConfig carries the tunables for link minting.
type RegistryConfig struct {
	BaseURL    string
	LinkTTL    time.Duration
	CodeLength int
}

// LinkRegistry mints signed, expiring smart links under a per-inviter quota.
type LinkRegistry struct {
	logger  *zap.Logger
	links   repository.LinkRepository
	signer  *Signer
	quota   *RateLimiter
	cfg     RegistryConfig
	now     func() time.Time
	newCode func(length int) (string, error)

	// seen is a best-effort pre-filter over issued codes; the unique insert
	// remains the authoritative collision check.
	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// NewLinkRegistry builds a registry around the given collaborators.
func NewLinkRegistry(logger *zap.Logger, links repository.LinkRepository, signer *Signer, quota *RateLimiter, cfg RegistryConfig) *LinkRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 7 * 24 * time.Hour
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 10
	}
	return &LinkRegistry{
		logger:  logger,
		links:   links,
		signer:  signer,
		quota:   quota,
		cfg:     cfg,
		now:     time.Now,
		newCode: randomCode,
		seen:    bloom.NewWithEstimates(10_000_000, 0.001),
	}
}

// CreateLink mints a new smart link for the inviter. On quota exhaustion it
// returns a *RateLimitError carrying the ceiling and reset time.
func (s *LinkRegistry) CreateLink(ctx context.Context, actorID string, loop model.Loop, params map[string]string) (*model.SmartLink, string, error) {
	if actorID == "" || len(actorID) > 64 {
		return nil, "", ErrInvalidActor
	}
	if _, ok := model.ParseLoop(string(loop)); !ok {
		return nil, "", ErrUnknownLoop
	}
	if err := validateParams(params); err != nil {
		return nil, "", err
	}

	q, err := s.quota.Check(ctx, actorID)
	if err != nil {
		return nil, "", err
	}
	if !q.Allowed {
		return nil, "", &RateLimitError{Limit: q.Limit, ResetAt: q.ResetAt}
	}

	expiresAt := s.now().Add(s.cfg.LinkTTL).Truncate(time.Second)

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, "", fmt.Errorf("encode link params: %w", err)
	}

	link, err := s.insertWithFreshCode(ctx, actorID, loop, params, paramsJSON, expiresAt)
	if err != nil {
		return nil, "", err
	}

	// The quota is advisory protection, not a correctness guarantee: a failed
	// increment is logged and the already-persisted link is still returned.
	if err := s.quota.Increment(ctx, actorID); err != nil {
		s.logger.Warn("failed to increment link quota",
			zap.Error(err),
			zap.String("actor_id", actorID))
	}

	return link, s.ShareURL(link.Code), nil
}

// Quota exposes the read-only quota view for the given actor.
func (s *LinkRegistry) Quota(ctx context.Context, actorID string) (Quota, error) {
	if actorID == "" {
		return Quota{}, ErrInvalidActor
	}
	return s.quota.Check(ctx, actorID)
}

// Links lists the inviter's most recent links, newest first.
func (s *LinkRegistry) Links(ctx context.Context, actorID string, limit int) ([]model.SmartLink, error) {
	if actorID == "" {
		return nil, ErrInvalidActor
	}
	return s.links.ListByInviter(ctx, actorID, limit)
}

// Resolve loads a link by code and verifies signature and expiry. Any
// verification failure is reported as ErrLinkNotFound so callers treat forged
// and missing links identically.
func (s *LinkRegistry) Resolve(ctx context.Context, code string) (*model.SmartLink, error) {
	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if !s.now().Before(link.ExpiresAt) {
		return nil, repository.ErrLinkNotFound
	}

	params, err := decodeParams(link.Params)
	if err != nil {
		return nil, repository.ErrLinkNotFound
	}
	if !s.signer.Verify(link.Signature, link.Code, link.ExpiresAt, link.InviterID, link.Loop, params) {
		s.logger.Warn("smart link failed signature verification", zap.String("code", code))
		return nil, repository.ErrLinkNotFound
	}

	return link, nil
}

func (s *LinkRegistry) insertWithFreshCode(ctx context.Context, actorID string, loop model.Loop, params map[string]string, paramsJSON []byte, expiresAt time.Time) (*model.SmartLink, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.newCode(s.cfg.CodeLength)
		if err != nil {
			return nil, fmt.Errorf("generate link code: %w", err)
		}

		s.mu.Lock()
		taken := s.seen.TestString(code)
		s.mu.Unlock()
		if taken {
			continue
		}

		sig, err := s.signer.Sign(code, expiresAt, actorID, loop, params)
		if err != nil {
			return nil, fmt.Errorf("sign link: %w", err)
		}

		link := &model.SmartLink{
			Code:      code,
			InviterID: actorID,
			Loop:      loop,
			Params:    paramsJSON,
			Signature: sig,
			ExpiresAt: expiresAt,
		}

		if err := s.links.Create(ctx, link); err != nil {
			if errors.Is(err, repository.ErrCodeTaken) {
				s.mu.Lock()
				s.seen.AddString(code)
				s.mu.Unlock()
				continue
			}
			return nil, fmt.Errorf("persist link: %w", err)
		}

		s.mu.Lock()
		s.seen.AddString(code)
		s.mu.Unlock()
		return link, nil
	}

	return nil, ErrCodeSpaceExhausted
}

// ShareURL builds the public URL for an issued code.
func (s *LinkRegistry) ShareURL(code string) string {
	return fmt.Sprintf("%s/r/%s", strings.TrimRight(s.cfg.BaseURL, "/"), code)
}

func validateParams(params map[string]string) error {
	if len(params) > maxParamCount {
		return ErrParamsTooLarge
	}
	for k, v := range params {
		if len(k) > maxParamValueLen || len(v) > maxParamValueLen {
			return ErrParamsTooLarge
		}
	}
	return nil
}

func decodeParams(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var params map[string]string
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}

// randomCode draws a fixed-length code from a cryptographically strong source.
func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
