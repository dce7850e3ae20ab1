package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// UserReadRepository looks up the identity mirror.
type UserReadRepository struct {
	db *sqlx.DB
}

// NewUserReadRepository creates a new UserReadRepository.
func NewUserReadRepository(db *sqlx.DB) *UserReadRepository {
	return &UserReadRepository{db: db}
}

// Exists reports whether a user with the given id is known.
func (r *UserReadRepository) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, userID)
	logQuery(query, []any{userID}, exists, err)

	return exists, err
}
