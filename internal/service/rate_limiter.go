package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/noah-isme/voter-support-api/internal/models"
	"github.com/noah-isme/voter-support-api/pkg/config"
	appErrors "github.com/noah-isme/voter-support-api/pkg/errors"
)

// RateLimitStore performs the atomic check-and-record step for one submitter key.
type RateLimitStore interface {
	Acquire(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, time.Time, error)
	Release(ctx context.Context, key string, recordedAt time.Time) error
}

// RateLimiterConfig tunes the submission cool-down.
type RateLimiterConfig struct {
	Cooldown    time.Duration
	KeyStrategy string
}

// RateLimitSlot is a granted submission slot that can be handed back with Release.
type RateLimitSlot struct {
	Key        string
	RecordedAt time.Time
}

// RateLimiter enforces one accepted submission per submitter within the cool-down.
type RateLimiter struct {
	store       RateLimitStore
	cooldown    time.Duration
	keyStrategy string
	logger      *zap.Logger
}

// NewRateLimiter constructs a limiter over store.
func NewRateLimiter(store RateLimitStore, cfg RateLimiterConfig, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.KeyStrategy == "" {
		cfg.KeyStrategy = config.RateLimitKeySchoolID
	}
	return &RateLimiter{store: store, cooldown: cfg.Cooldown, keyStrategy: cfg.KeyStrategy, logger: logger}
}

// Cooldown returns the configured window.
func (l *RateLimiter) Cooldown() time.Duration {
	return l.cooldown
}

// SubmitterKey derives the opaque limiter key for a submission. Identities are hashed so
// raw emails never reach the limiter backend.
func (l *RateLimiter) SubmitterKey(sub *models.SupportSubmission) string {
	var identity string
	switch l.keyStrategy {
	case config.RateLimitKeyEmail:
		identity = "email:" + sub.Email
	case config.RateLimitKeySchoolIDEmail:
		identity = "school_id_email:" + strconv.FormatInt(sub.SchoolID, 10) + ":" + sub.Email
	default:
		identity = "school_id:" + strconv.FormatInt(sub.SchoolID, 10)
	}
	sum := blake2b.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}

// CheckAndRecord grants a slot for key at now, or fails with RATE_LIMITED carrying the retry delay.
// Backend failures are returned unwrapped.
func (l *RateLimiter) CheckAndRecord(ctx context.Context, key string, now time.Time) (*RateLimitSlot, error) {
	now = now.UTC().Truncate(time.Microsecond)
	ok, last, err := l.store.Acquire(ctx, key, now, l.cooldown)
	if err != nil {
		return nil, err
	}
	if !ok {
		wait := last.Add(l.cooldown).Sub(now)
		l.logger.Debug("support submission rate limited", zap.String("key", shortKey(key)), zap.Duration("retry_after", wait))
		return nil, l.limitedError(wait)
	}
	return &RateLimitSlot{Key: key, RecordedAt: last}, nil
}

// Release hands back a slot taken by CheckAndRecord, e.g. when the request could not be stored.
func (l *RateLimiter) Release(ctx context.Context, slot *RateLimitSlot) error {
	if slot == nil {
		return nil
	}
	return l.store.Release(ctx, slot.Key, slot.RecordedAt)
}

func (l *RateLimiter) limitedError(wait time.Duration) error {
	err := appErrors.Clone(appErrors.ErrRateLimited,
		fmt.Sprintf("Please wait %s before submitting another support request", humanizeCooldown(l.cooldown)))
	err.RetryAfter = int(math.Ceil(wait.Seconds()))
	if err.RetryAfter < 1 {
		err.RetryAfter = 1
	}
	return err
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

func humanizeCooldown(d time.Duration) string {
	switch {
	case d%time.Minute == 0:
		if d == time.Minute {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	case d%time.Second == 0 && d < time.Minute:
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	default:
		return d.String()
	}
}

// MemoryRateLimitStore keeps slots in process memory. Suitable for a single instance or tests.
type MemoryRateLimitStore struct {
	mu    sync.Mutex
	slots map[string]time.Time
}

// NewMemoryRateLimitStore constructs an empty store.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{slots: make(map[string]time.Time)}
}

// Acquire implements RateLimitStore.
func (m *MemoryRateLimitStore) Acquire(_ context.Context, key string, now time.Time, cooldown time.Duration) (bool, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.slots[key]; ok && now.Sub(last) < cooldown {
		return false, last, nil
	}
	if len(m.slots) >= 4096 {
		for k, last := range m.slots {
			if now.Sub(last) >= cooldown {
				delete(m.slots, k)
			}
		}
	}
	m.slots[key] = now
	return true, now, nil
}

// Release implements RateLimitStore.
func (m *MemoryRateLimitStore) Release(_ context.Context, key string, recordedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.slots[key]; ok && last.Equal(recordedAt) {
		delete(m.slots, key)
	}
	return nil
}
