package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

var ErrReferenceClaimed = errors.New("payment reference already funds another listing")

const refKeyPrefix = "skillmarket:escrow:ref:"

// A claim is a hash of the funded listing and the number of hire attempts
// holding it. Attempts for the same listing share the claim; the key goes
// away only when every holder has released it.
var claimScript = redis.NewScript(`
local owner = redis.call("HGET", KEYS[1], "listing")
if not owner then
	redis.call("HSET", KEYS[1], "listing", ARGV[1], "holders", 1)
	return ARGV[1]
end
if owner == ARGV[1] then
	redis.call("HINCRBY", KEYS[1], "holders", 1)
end
return owner
`)

var unclaimScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "listing") ~= ARGV[1] then
	return 0
end
if redis.call("HINCRBY", KEYS[1], "holders", -1) <= 0 then
	redis.call("DEL", KEYS[1])
end
return 1
`)

// RefRegistry records which listing an external payment reference funded.
// Claims do not expire.
type RefRegistry struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRefRegistry(client *redis.Client, logger *zap.Logger) *RefRegistry {
	return &RefRegistry{client: client, logger: logger}
}

// Claim binds reference to listingID and adds one holder. Claiming again for
// the same listing succeeds. A hire that commits keeps its hold for good.
func (r *RefRegistry) Claim(ctx context.Context, reference, listingID string) error {
	owner, err := claimScript.Run(ctx, r.client, []string{refKeyPrefix + reference}, listingID).Text()
	if err != nil {
		return &UnavailableError{Op: "RefRegistry.Claim", Err: err}
	}
	if owner != listingID {
		return fmt.Errorf("%w: %s", ErrReferenceClaimed, owner)
	}
	r.logger.Debug("payment reference claimed", zap.String("reference", reference), zap.String("listing_id", listingID))
	return nil
}

// Unclaim drops one hold taken by a hire attempt that did not commit.
func (r *RefRegistry) Unclaim(ctx context.Context, reference, listingID string) error {
	if err := unclaimScript.Run(ctx, r.client, []string{refKeyPrefix + reference}, listingID).Err(); err != nil {
		return &UnavailableError{Op: "RefRegistry.Unclaim", Err: err}
	}
	return nil
}

// Owner returns the listing the reference funds, or "" when unclaimed.
func (r *RefRegistry) Owner(ctx context.Context, reference string) (string, error) {
	owner, err := r.client.HGet(ctx, refKeyPrefix+reference, "listing").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", &UnavailableError{Op: "RefRegistry.Owner", Err: err}
	}
	return owner, nil
}

var _ marketplace.ReferenceRegistry = (*RefRegistry)(nil)
