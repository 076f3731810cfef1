package shared

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyPrefix  = "pos:idem:"
	idempotencyPending = "pending:"
	idempotencyDone    = "done:"
)

// ErrIdempotencyInFlight indicates an earlier request with the same key has not finished.
var ErrIdempotencyInFlight = fmt.Errorf("%w: request with this idempotency key is still in progress", ErrConflict)

// releaseScript deletes the key only while it still holds the caller's claim token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IdempotencyGuard maps client submission keys to the record they created,
// so a retried submission returns the original result instead of writing twice.
type IdempotencyGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewIdempotencyGuard constructs the guard. A nil client disables it.
func NewIdempotencyGuard(client redis.UniversalClient, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyGuard{client: client, ttl: ttl}
}

// Claim is the outcome of reserving an idempotency key.
type Claim struct {
	key   string
	token string
	// ExistingID is the id recorded by a completed earlier submission.
	ExistingID int64
}

// Owned reports whether the caller holds the key and must Complete or Release it.
func (c Claim) Owned() bool {
	return c.token != ""
}

// Claim reserves key within scope. When an earlier submission completed, the
// returned claim carries its id and is not owned.
func (g *IdempotencyGuard) Claim(ctx context.Context, scope, key string) (Claim, error) {
	if g == nil || g.client == nil || key == "" {
		return Claim{}, nil
	}
	redisKey := idempotencyPrefix + scope + ":" + key
	token := idempotencyPending + uuid.NewString()
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := g.client.SetNX(ctx, redisKey, token, g.ttl).Result()
		if err != nil {
			return Claim{}, fmt.Errorf("shared: claim idempotency key: %w", err)
		}
		if ok {
			return Claim{key: redisKey, token: token}, nil
		}
		val, err := g.client.Get(ctx, redisKey).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return Claim{}, fmt.Errorf("shared: read idempotency key: %w", err)
		}
		if strings.HasPrefix(val, idempotencyDone) {
			id, err := strconv.ParseInt(strings.TrimPrefix(val, idempotencyDone), 10, 64)
			if err != nil {
				return Claim{}, fmt.Errorf("shared: corrupt idempotency record %q: %w", redisKey, err)
			}
			return Claim{ExistingID: id}, nil
		}
		return Claim{}, ErrIdempotencyInFlight
	}
	return Claim{}, ErrIdempotencyInFlight
}

// Complete records id as the result of the claimed submission.
func (g *IdempotencyGuard) Complete(ctx context.Context, c Claim, id int64) error {
	if g == nil || g.client == nil || !c.Owned() {
		return nil
	}
	return g.client.Set(ctx, c.key, idempotencyDone+strconv.FormatInt(id, 10), g.ttl).Err()
}

// Release drops the claim so the client may retry after a failure.
func (g *IdempotencyGuard) Release(ctx context.Context, c Claim) error {
	if g == nil || g.client == nil || !c.Owned() {
		return nil
	}
	return releaseScript.Run(ctx, g.client, []string{c.key}, c.token).Err()
}
