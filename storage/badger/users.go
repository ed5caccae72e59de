package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// AddUser stores a user, assigning an ID from the user sequence when Id is 0.
func (r *Repository) AddUser(ctx context.Context, user *core.User) (*core.User, error) {
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		if user.Id == 0 {
			id, err := nextID(r.userSeq)
			if err != nil {
				return err
			}
			user.Id = core.ID(id)
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = time.Now().UTC()
		}
		return tx.Set(makeUserKey(user.Id), storage.MarshalUser(user))
	}, true)
	return user, err
}

// GetUser retrieves a user by ID.
func (r *Repository) GetUser(ctx context.Context, id core.ID) (*core.User, error) {
	var user *core.User
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		var err error
		user, err = mustRead(tx, makeUserKey(id), storage.UnmarshalUser)
		return err
	}, false)
	return user, err
}

// AddGroup stores a group and indexes its members.
func (r *Repository) AddGroup(ctx context.Context, group *core.Group) (*core.Group, error) {
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		if group.Id == 0 {
			id, err := nextID(r.groupSeq)
			if err != nil {
				return err
			}
			group.Id = core.ID(id)
		}
		if group.CreatedAt.IsZero() {
			group.CreatedAt = time.Now().UTC()
		}
		if err := tx.Set(makeGroupKey(group.Id), storage.MarshalGroup(group)); err != nil {
			return err
		}
		for _, member := range group.Members {
			if err := tx.Set(makeGroupMemberKey(member, group.Id), []byte{}); err != nil {
				return err
			}
		}
		return nil
	}, true)
	return group, err
}

// GetGroup retrieves a group by ID.
func (r *Repository) GetGroup(ctx context.Context, id core.ID) (*core.Group, error) {
	var group *core.Group
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		var err error
		group, err = mustRead(tx, makeGroupKey(id), storage.UnmarshalGroup)
		return err
	}, false)
	return group, err
}

// AddGroupMember adds a user to a group.
func (r *Repository) AddGroupMember(ctx context.Context, groupID, userID core.ID) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		group, err := mustRead(tx, makeGroupKey(groupID), storage.UnmarshalGroup)
		if err != nil {
			return err
		}
		if group.HasMember(userID) {
			return nil
		}
		group.Members = append(group.Members, userID)
		if err := tx.Set(makeGroupKey(groupID), storage.MarshalGroup(group)); err != nil {
			return err
		}
		return tx.Set(makeGroupMemberKey(userID, groupID), []byte{})
	}, true)
}

// GroupsForUser returns the IDs of the groups userID belongs to, ordered by ID.
func (r *Repository) GroupsForUser(ctx context.Context, userID core.ID) ([]core.ID, error) {
	var groups []core.ID
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		return scanKeys(tx, makeKey(groupMemberPrefix, uint64(userID)), func(key []byte) error {
			groups = append(groups, keySuffixID(key))
			return nil
		})
	}, false)
	return groups, err
}
