package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lumenlearn/growthloop/internal/app/model"
	"github.com/lumenlearn/growthloop/internal/app/repository"
	"go.uber.org/zap"
)

// memoryLinkRepository is an in-memory LinkRepository honoring the
// insert-if-absent contract.
type memoryLinkRepository struct {
	mu    sync.Mutex
	links map[string]model.SmartLink
}

func newMemoryLinkRepository() *memoryLinkRepository {
	return &memoryLinkRepository{links: make(map[string]model.SmartLink)}
}

func (m *memoryLinkRepository) Create(ctx context.Context, link *model.SmartLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.links[link.Code]; exists {
		return repository.ErrCodeTaken
	}
	m.links[link.Code] = *link
	return nil
}

func (m *memoryLinkRepository) GetByCode(ctx context.Context, code string) (*model.SmartLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[code]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	return &link, nil
}

func (m *memoryLinkRepository) ListByInviter(ctx context.Context, inviterID string, limit int) ([]model.SmartLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SmartLink
	for _, link := range m.links {
		if link.InviterID == inviterID {
			out = append(out, link)
		}
	}
	return out, nil
}

func newTestRegistry(t *testing.T, limit int) (*LinkRegistry, *memoryLinkRepository) {
	t.Helper()
	repo := newMemoryLinkRepository()
	signer := NewSigner([]byte("test-secret"))
	limiter := NewRateLimiter(newMemoryCounters(), limit)
	registry := NewLinkRegistry(zap.NewNop(), repo, signer, limiter, RegistryConfig{
		BaseURL: "https://lumen.example",
	})
	return registry, repo
}

func TestLinkRegistry_CreateLink(t *testing.T) {
	registry, repo := newTestRegistry(t, 10)

	link, url, err := registry.CreateLink(context.Background(), "u1", model.LoopBuddyChallenge, map[string]string{"subject": "algebra"})
	if err != nil {
		t.Fatalf("CreateLink error: %v", err)
	}
	if len(link.Code) != 10 {
		t.Fatalf("expected 10-char code, got %q", link.Code)
	}
	if url != "https://lumen.example/r/"+link.Code {
		t.Fatalf("unexpected url %q", url)
	}
	if !time.Now().Before(link.ExpiresAt) {
		t.Fatal("expected future expiry")
	}

	stored, err := repo.GetByCode(context.Background(), link.Code)
	if err != nil {
		t.Fatalf("GetByCode error: %v", err)
	}
	var params map[string]string
	if err := json.Unmarshal(stored.Params, &params); err != nil {
		t.Fatalf("decode stored params: %v", err)
	}
	if params["subject"] != "algebra" {
		t.Fatalf("expected stored subject, got %v", params)
	}
}

func TestLinkRegistry_Validation(t *testing.T) {
	registry, _ := newTestRegistry(t, 10)
	ctx := context.Background()

	if _, _, err := registry.CreateLink(ctx, "", model.LoopBuddyChallenge, nil); !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected ErrInvalidActor, got %v", err)
	}
	if _, _, err := registry.CreateLink(ctx, "u1", model.Loop("made_up"), nil); !errors.Is(err, ErrUnknownLoop) {
		t.Fatalf("expected ErrUnknownLoop, got %v", err)
	}

	big := make(map[string]string)
	for i := 0; i < maxParamCount+1; i++ {
		big[string(rune('a'+i))] = "v"
	}
	if _, _, err := registry.CreateLink(ctx, "u1", model.LoopBuddyChallenge, big); !errors.Is(err, ErrParamsTooLarge) {
		t.Fatalf("expected ErrParamsTooLarge, got %v", err)
	}
}

func TestLinkRegistry_QuotaExhaustion(t *testing.T) {
	registry, _ := newTestRegistry(t, 10)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, _, err := registry.CreateLink(ctx, "u1", model.LoopBuddyChallenge, map[string]string{"subject": "algebra"}); err != nil {
			t.Fatalf("creation %d failed: %v", i+1, err)
		}
	}

	_, _, err := registry.CreateLink(ctx, "u1", model.LoopBuddyChallenge, nil)
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError on 11th creation, got %v", err)
	}
	if rateErr.Limit != 10 {
		t.Fatalf("expected limit 10, got %d", rateErr.Limit)
	}
	if !rateErr.ResetAt.After(time.Now()) {
		t.Fatal("expected reset time in the future")
	}

	// Other actors are unaffected.
	if _, _, err := registry.CreateLink(ctx, "u2", model.LoopCelebrate, nil); err != nil {
		t.Fatalf("unrelated actor should not be limited: %v", err)
	}
}

func TestLinkRegistry_CollisionRetry(t *testing.T) {
	registry, repo := newTestRegistry(t, 10)
	ctx := context.Background()

	codes := []string{"collide111", "collide111", "fresh55555"}
	i := 0
	registry.newCode = func(length int) (string, error) {
		code := codes[i]
		i++
		return code, nil
	}
	repo.links["collide111"] = model.SmartLink{Code: "collide111"}

	link, _, err := registry.CreateLink(ctx, "u1", model.LoopStudyGroup, nil)
	if err != nil {
		t.Fatalf("CreateLink error: %v", err)
	}
	if link.Code != "fresh55555" {
		t.Fatalf("expected retry to land on fresh code, got %q", link.Code)
	}
}

func TestLinkRegistry_CodeSpaceExhausted(t *testing.T) {
	registry, repo := newTestRegistry(t, 10)
	ctx := context.Background()

	registry.newCode = func(length int) (string, error) { return "collide111", nil }
	repo.links["collide111"] = model.SmartLink{Code: "collide111"}

	if _, _, err := registry.CreateLink(ctx, "u1", model.LoopStudyGroup, nil); !errors.Is(err, ErrCodeSpaceExhausted) {
		t.Fatalf("expected ErrCodeSpaceExhausted, got %v", err)
	}
}

func TestLinkRegistry_ResolveRoundTrip(t *testing.T) {
	registry, _ := newTestRegistry(t, 10)
	ctx := context.Background()

	link, _, err := registry.CreateLink(ctx, "u1", model.LoopBuddyChallenge, map[string]string{"subject": "algebra"})
	if err != nil {
		t.Fatalf("CreateLink error: %v", err)
	}

	resolved, err := registry.Resolve(ctx, link.Code)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if resolved.InviterID != "u1" || resolved.Loop != model.LoopBuddyChallenge {
		t.Fatalf("resolved link does not round-trip: %+v", resolved)
	}
}

func TestLinkRegistry_ResolveRejectsExpired(t *testing.T) {
	registry, _ := newTestRegistry(t, 10)
	ctx := context.Background()

	link, _, err := registry.CreateLink(ctx, "u1", model.LoopCelebrate, nil)
	if err != nil {
		t.Fatalf("CreateLink error: %v", err)
	}

	// Jump past expiry: the signature is still valid, expiry alone must reject.
	registry.now = func() time.Time { return link.ExpiresAt.Add(time.Second) }
	if _, err := registry.Resolve(ctx, link.Code); !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected expired link to resolve as not found, got %v", err)
	}
}

func TestLinkRegistry_ResolveRejectsTampered(t *testing.T) {
	registry, repo := newTestRegistry(t, 10)
	ctx := context.Background()

	link, _, err := registry.CreateLink(ctx, "u1", model.LoopCelebrate, nil)
	if err != nil {
		t.Fatalf("CreateLink error: %v", err)
	}

	tampered := repo.links[link.Code]
	tampered.InviterID = "attacker"
	repo.links[link.Code] = tampered

	if _, err := registry.Resolve(ctx, link.Code); !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected tampered link to resolve as not found, got %v", err)
	}
}

func TestLinkRegistry_ListsOwnLinksOnly(t *testing.T) {
	registry, _ := newTestRegistry(t, 10)
	ctx := context.Background()

	if _, _, err := registry.CreateLink(ctx, "u1", model.LoopBuddyChallenge, nil); err != nil {
		t.Fatalf("CreateLink error: %v", err)
	}
	if _, _, err := registry.CreateLink(ctx, "u1", model.LoopCelebrate, nil); err != nil {
		t.Fatalf("CreateLink error: %v", err)
	}
	if _, _, err := registry.CreateLink(ctx, "u2", model.LoopStudyGroup, nil); err != nil {
		t.Fatalf("CreateLink error: %v", err)
	}

	links, err := registry.Links(ctx, "u1", 20)
	if err != nil {
		t.Fatalf("Links error: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links for u1, got %d", len(links))
	}
	for _, link := range links {
		if link.InviterID != "u1" {
			t.Fatalf("listed someone else's link: %+v", link)
		}
	}

	if _, err := registry.Links(ctx, "", 20); !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected ErrInvalidActor for empty actor, got %v", err)
	}
}

func TestLinkRegistry_QuotaView(t *testing.T) {
	registry, _ := newTestRegistry(t, 3)
	ctx := context.Background()

	if _, _, err := registry.CreateLink(ctx, "u1", model.LoopShareProgress, nil); err != nil {
		t.Fatalf("CreateLink error: %v", err)
	}

	q, err := registry.Quota(ctx, "u1")
	if err != nil {
		t.Fatalf("Quota error: %v", err)
	}
	if q.Limit != 3 || q.Remaining != 2 || !q.Allowed {
		t.Fatalf("unexpected quota view: %+v", q)
	}
}
