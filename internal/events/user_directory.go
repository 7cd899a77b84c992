package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/pacebuddies/internal/store"
)

const userPartition = "user"

// UserDirectory - read-only view into the user entities. User CRUD is owned
// elsewhere, the coordinator only checks existence.
type UserDirectory struct {
	db store.EntityStore
}

func NewUserDirectory(db store.EntityStore) *UserDirectory {
	return &UserDirectory{db: db}
}

func (d *UserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	_, err := d.db.Get(ctx, store.KindUser, userPartition, userID)
	if err != nil {
		if errors.Is(err, store.ErrEntityNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get user %s: %w", userID, err)
	}
	return true, nil
}
