package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/ivmel/modelbooth-bot/internal/kie"
	"github.com/ivmel/modelbooth-bot/internal/session"
	"github.com/ivmel/modelbooth-bot/internal/store"
)

const (
	maxRefImages     = 3
	variationsPerRef = 2

	promptTemplate = "Professional studio photo of %s. Keep the face and identity from the first image, recreate the pose, outfit and framing of the second image."
)

// Rejections surfaced to the user before any backend call is made. Each
// precondition gets its own error so the reply can say what to fix.
var (
	ErrNotApproved  = errors.New("user is not approved")
	ErrNoModelName  = errors.New("model name not set")
	ErrNoBaseImages = errors.New("no base images in session")
	ErrNoRefImages  = errors.New("no reference images in session")
)

// QuotaExceededError rejects a batch that would push the user past the
// daily limit. Nothing executes and nothing is charged.
type QuotaExceededError struct {
	Used      int
	Limit     int
	Requested int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily quota exceeded: used %d of %d, requested %d more", e.Used, e.Limit, e.Requested)
}

// Editor is the external image-editing backend, one call per variation.
type Editor interface {
	Edit(ctx context.Context, baseImage, refImage, prompt string, seed int64) (*kie.Image, error)
}

// BatchResult summarizes one generation run.
type BatchResult struct {
	Requested int
	Produced  int
}

// GenerationService computes the generation plan for a session, enforces
// the daily quota and drives the backend sequentially, streaming results
// as they arrive.
type GenerationService struct {
	log      *slog.Logger
	access   *AccessService
	ledger   *store.Ledger
	sessions *session.Store
	editor   Editor
	limit    int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGenerationService(log *slog.Logger, access *AccessService, ledger *store.Ledger, sessions *session.Store, editor Editor, dailyLimit int) *GenerationService {
	return &GenerationService{
		log:      log,
		access:   access,
		ledger:   ledger,
		sessions: sessions,
		editor:   editor,
		limit:    dailyLimit,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Generate runs one batch for the user. Preconditions are checked in
// order, each with its own rejection; the quota check admits a batch that
// lands exactly on the limit and rejects anything past it without
// executing. Each selected reference yields variationsPerRef sequential
// backend calls; a failed call is logged and skipped, no retries. Usage
// is charged for the number requested, not produced, and the session is
// cleared unconditionally after the run.
//
// The whole call is serialized per user so two rapid generation requests
// cannot both pass the quota check and double-spend.
func (s *GenerationService) Generate(ctx context.Context, userID string, deliver func(index, total int, img *kie.Image)) (*BatchResult, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if !s.access.IsApproved(userID) {
		return nil, ErrNotApproved
	}

	sess := s.sessions.Get(userID)
	if sess.ModelName == "" {
		return nil, ErrNoModelName
	}
	if len(sess.BaseImages) == 0 {
		return nil, ErrNoBaseImages
	}
	if len(sess.RefImages) == 0 {
		return nil, ErrNoRefImages
	}

	refs := sess.RefImages
	if len(refs) > maxRefImages {
		refs = refs[:maxRefImages]
	}
	total := len(refs) * variationsPerRef

	used := s.ledger.Count(userID)
	if used+total > s.limit {
		return nil, &QuotaExceededError{Used: used, Limit: s.limit, Requested: total}
	}

	prompt := fmt.Sprintf(promptTemplate, sess.ModelName)
	base := sess.BaseImages[0]

	produced := 0
	index := 0
	for _, ref := range refs {
		for v := 0; v < variationsPerRef; v++ {
			index++
			img, err := s.editor.Edit(ctx, base, ref, prompt, rand.Int63())
			if err != nil {
				s.log.Error("edit call failed", "user", userID, "index", index, "total", total, "err", err)
				continue
			}
			if img == nil || img.URL == "" {
				s.log.Warn("edit call returned no image", "user", userID, "index", index, "total", total)
				continue
			}
			produced++
			if deliver != nil {
				deliver(index, total, img)
			}
		}
	}

	// Failed variations still consume quota: the charge is for attempts,
	// not successes.
	if err := s.ledger.Add(userID, total); err != nil {
		s.log.Error("record usage", "user", userID, "err", err)
	}
	s.sessions.Clear(userID)

	return &BatchResult{Requested: total, Produced: produced}, nil
}

// Usage returns today's count and the daily limit.
func (s *GenerationService) Usage(userID string) (used, limit int) {
	return s.ledger.Count(userID), s.limit
}

func (s *GenerationService) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}
