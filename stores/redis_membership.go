package stores

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/burnnotice/authz"
)

// RedisMembershipStore keeps user->membership mappings in Redis sets, one
// set per user (authz:memberships:{userID}, members "membershipID:tenantID")
// and a reverse set per tenant (authz:members:{tenantID}, members userID).
// It implements authz.MembershipStore for deployments that push membership
// snapshots into Redis; inactive memberships are simply absent from the set.
type RedisMembershipStore struct {
	client *redis.Client
}

func NewRedisMembershipStore(client *redis.Client) *RedisMembershipStore {
	return &RedisMembershipStore{client: client}
}

func (r *RedisMembershipStore) userKey(userID string) string {
	return fmt.Sprintf("authz:memberships:%s", userID)
}

func (r *RedisMembershipStore) tenantKey(tenantID string) string {
	return fmt.Sprintf("authz:members:%s", tenantID)
}

func (r *RedisMembershipStore) AddMembership(ctx context.Context, m authz.Membership) error {
	if !m.Active {
		return nil
	}
	if err := r.client.SAdd(ctx, r.userKey(m.UserID), m.ID+":"+m.TenantID).Err(); err != nil {
		return err
	}
	return r.client.SAdd(ctx, r.tenantKey(m.TenantID), m.UserID).Err()
}

func (r *RedisMembershipStore) RemoveMembership(ctx context.Context, m authz.Membership) error {
	if err := r.client.SRem(ctx, r.userKey(m.UserID), m.ID+":"+m.TenantID).Err(); err != nil {
		return err
	}
	return r.client.SRem(ctx, r.tenantKey(m.TenantID), m.UserID).Err()
}

func (r *RedisMembershipStore) ListActiveMemberships(ctx context.Context, userID string) ([]authz.Membership, error) {
	members, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]authz.Membership, 0, len(members))
	for _, m := range members {
		membershipID, tenantID, ok := strings.Cut(m, ":")
		if !ok {
			return nil, fmt.Errorf("malformed membership entry %q for user %s", m, userID)
		}
		out = append(out, authz.Membership{ID: membershipID, UserID: userID, TenantID: tenantID, Active: true})
	}
	return out, nil
}

func (r *RedisMembershipStore) ListMemberUserIDs(ctx context.Context, tenantID string) ([]string, error) {
	return r.client.SMembers(ctx, r.tenantKey(tenantID)).Result()
}
