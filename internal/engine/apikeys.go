package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"staffline/internal/domain"
	"staffline/internal/repo"
)

const apiKeyPrefix = "slk_"

type IssueAPIKeyOptions struct {
	ActorID string
	Role    string
	Name    string
}

// IssueAPIKey stores a hashed key for actor and returns the record with the plaintext key.
// The plaintext is never persisted.
func (e Engine) IssueAPIKey(ctx context.Context, opts IssueAPIKeyOptions) (domain.APIKey, string, error) {
	actor := strings.TrimSpace(opts.ActorID)
	role := strings.TrimSpace(opts.Role)
	if actor == "" {
		return domain.APIKey{}, "", invalidRequest("actor_id required")
	}
	if role == "" {
		return domain.APIKey{}, "", invalidRequest("role required")
	}
	if e.Config != nil && len(e.Config.RBAC.Roles) > 0 {
		if _, ok := e.Config.RBAC.Roles[role]; !ok {
			return domain.APIKey{}, "", invalidRequest("unknown role %q", role)
		}
	}
	secret := apiKeyPrefix + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actor,
		Role:      role,
		Name:      strings.TrimSpace(opts.Name),
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.stamp(),
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		return e.Repo.InsertAPIKey(ctx, tx, key)
	})
	if err != nil {
		return domain.APIKey{}, "", err
	}
	e.logger().Info("api key issued", "key_id", key.ID, "actor_id", actor, "role", role)
	return key, secret, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, actorID)
}

func (e Engine) RevokeAPIKey(ctx context.Context, id string) error {
	if err := e.Repo.DeleteAPIKey(ctx, id); err != nil {
		return notFound(err, "api key", id)
	}
	return nil
}
