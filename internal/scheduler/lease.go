package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ProcessorLeaseKey is the Redis key guarding processor runs.
const ProcessorLeaseKey = "zapflow:sequences:processor:lease"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a single-holder Redis lease with a TTL. An expired lease can be
// taken over; a late release never deletes someone else's lease.
type Lease struct {
	client redis.UniversalClient
	key    string
}

func NewLease(client redis.UniversalClient, key string) *Lease {
	return &Lease{client: client, key: key}
}

// TryAcquire takes the lease for ttl without waiting.
func (l *Lease) TryAcquire(ctx context.Context, ttl time.Duration) (func(context.Context), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) {
		_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}
