package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/privilege"
)

// RedisMembershipStore keeps a principal's role assignments in a Redis hash
// (key: privmem:{principalID}, field: roleID, value: assignment JSON).
// Revocation rewrites the field with revoked_at stamped so the history
// survives like it does in SQL.
type RedisMembershipStore struct {
	client *redis.Client
	keyFmt string // format string, e.g. "privmem:%s"
}

func NewRedisMembershipStore(client *redis.Client) *RedisMembershipStore {
	return &RedisMembershipStore{client: client, keyFmt: "privmem:%s"}
}

func (r *RedisMembershipStore) key(principalID string) string {
	return fmt.Sprintf(r.keyFmt, principalID)
}

func (r *RedisMembershipStore) AssignRole(ctx context.Context, a *privilege.RoleAssignment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.key(a.PrincipalID), a.RoleID, string(raw)).Err()
}

func (r *RedisMembershipStore) RevokeRole(ctx context.Context, principalID, roleID string, revokedAt time.Time) error {
	raw, err := r.client.HGet(ctx, r.key(principalID), roleID).Result()
	if err == redis.Nil {
		return &privilege.NotFoundError{Kind: "membership", Key: principalID + "/" + roleID}
	}
	if err != nil {
		return err
	}
	var a privilege.RoleAssignment
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return err
	}
	if !a.IsActive(revokedAt) {
		return &privilege.NotFoundError{Kind: "membership", Key: principalID + "/" + roleID}
	}
	a.RevokedAt = revokedAt
	updated, err := json.Marshal(&a)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.key(principalID), roleID, string(updated)).Err()
}

func (r *RedisMembershipStore) ActiveAssignments(ctx context.Context, principalID string, now time.Time) ([]*privilege.RoleAssignment, error) {
	fields, err := r.client.HGetAll(ctx, r.key(principalID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*privilege.RoleAssignment, 0, len(fields))
	for _, raw := range fields {
		var a privilege.RoleAssignment
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			continue
		}
		if a.IsActive(now) {
			dup := a
			out = append(out, &dup)
		}
	}
	return out, nil
}
