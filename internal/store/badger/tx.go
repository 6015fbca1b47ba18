package badger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/dseinapp/dsein-server/internal/domain"
	"github.com/dseinapp/dsein-server/internal/store"
)

// tx adapts a badger.Txn to store.Tx. The same type serves read-only views.
type tx struct {
	txn *badger.Txn
}

var _ store.Tx = (*tx)(nil)

// getJSON decodes the value at key into v. A missing key is reported as found=false.
func (t *tx) getJSON(key []byte, v any) (bool, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (t *tx) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return t.set(key, data)
}

func (t *tx) set(key, val []byte) error {
	if err := t.txn.Set(key, val); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (t *tx) del(key []byte) error {
	if err := t.txn.Delete(key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// exists reports whether key is present. The read is tracked for conflict detection.
func (t *tx) exists(key []byte) (bool, error) {
	_, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	return true, nil
}

// keySuffixes returns the part of every key under prefix that follows it.
func (t *tx) keySuffixes(prefix []byte) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		out = append(out, string(it.Item().Key()[len(prefix):]))
	}
	return out, nil
}

// countPrefix counts keys under prefix without loading values.
func (t *tx) countPrefix(prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}

// scanValues calls fn with each value under prefix in key order, stopping after limit (0 = all).
func (t *tx) scanValues(prefix []byte, limit int, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if limit > 0 && n >= limit {
			break
		}
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read %s: %w", it.Item().Key(), err)
		}
		if err := fn(val); err != nil {
			return err
		}
		n++
	}
	return nil
}

// Users

func (t *tx) GetUser(id string) (*domain.User, error) {
	var u domain.User
	found, err := t.getJSON(userKey(id), &u)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (t *tx) GetUserByUsername(username string) (*domain.User, error) {
	item, err := t.txn.Get(usernameKey(username))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get username index: %w", err)
	}
	id, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("read username index: %w", err)
	}
	return t.GetUser(string(id))
}

func (t *tx) CreateUser(u *domain.User) error {
	taken, err := t.exists(userKey(u.ID))
	if err != nil {
		return err
	}
	if taken {
		return store.ErrAlreadyExists
	}
	taken, err = t.exists(usernameKey(u.Username))
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("username %q: %w", u.Username, store.ErrAlreadyExists)
	}

	if err := t.setJSON(userKey(u.ID), u); err != nil {
		return err
	}
	return t.set(usernameKey(u.Username), []byte(u.ID))
}

func (t *tx) UpdateUser(u *domain.User) error {
	existing, err := t.GetUser(u.ID)
	if err != nil {
		return err
	}

	if existing.Username != u.Username {
		taken, err := t.exists(usernameKey(u.Username))
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("username %q: %w", u.Username, store.ErrAlreadyExists)
		}
		if err := t.del(usernameKey(existing.Username)); err != nil {
			return err
		}
		if err := t.set(usernameKey(u.Username), []byte(u.ID)); err != nil {
			return err
		}
	}
	return t.setJSON(userKey(u.ID), u)
}

// Follows

func (t *tx) GetFollow(followerID, followingID string) (*domain.FollowEdge, error) {
	var e domain.FollowEdge
	found, err := t.getJSON(followKey(domain.FollowEdgeID(followerID, followingID)), &e)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (t *tx) CreateFollow(e *domain.FollowEdge) error {
	key := followKey(e.ID)
	taken, err := t.exists(key)
	if err != nil {
		return err
	}
	if taken {
		return store.ErrAlreadyExists
	}
	if err := t.setJSON(key, e); err != nil {
		return err
	}
	if err := t.set(followersKey(e.FollowingID, e.FollowerID), nil); err != nil {
		return err
	}
	return t.set(followingKey(e.FollowerID, e.FollowingID), nil)
}

func (t *tx) DeleteFollow(followerID, followingID string) error {
	key := followKey(domain.FollowEdgeID(followerID, followingID))
	found, err := t.exists(key)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	if err := t.del(key); err != nil {
		return err
	}
	if err := t.del(followersKey(followingID, followerID)); err != nil {
		return err
	}
	return t.del(followingKey(followerID, followingID))
}

func (t *tx) CountFollowers(userID string) (int, error) {
	return t.countPrefix(followersPrefix(userID)), nil
}

func (t *tx) CountFollowing(userID string) (int, error) {
	return t.countPrefix(followingPrefix(userID)), nil
}

// Likes

func (t *tx) GetLike(userID, postID string) (*domain.LikeEdge, error) {
	var l domain.LikeEdge
	found, err := t.getJSON(likeKey(domain.LikeEdgeID(userID, postID)), &l)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

func (t *tx) CreateLike(l *domain.LikeEdge) error {
	key := likeKey(l.ID)
	taken, err := t.exists(key)
	if err != nil {
		return err
	}
	if taken {
		return store.ErrAlreadyExists
	}
	if err := t.setJSON(key, l); err != nil {
		return err
	}
	return t.set(likesOwnerKey(l.PostOwnerID, l.CreatedAt, l.ID), []byte(l.ID))
}

func (t *tx) DeleteLike(userID, postID string) error {
	existing, err := t.GetLike(userID, postID)
	if err != nil {
		return err
	}
	if err := t.del(likeKey(existing.ID)); err != nil {
		return err
	}
	return t.del(likesOwnerKey(existing.PostOwnerID, existing.CreatedAt, existing.ID))
}

// Invites

func (t *tx) GetInvite(code string) (*domain.Invite, error) {
	var inv domain.Invite
	found, err := t.getJSON(inviteKey(code), &inv)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (t *tx) CreateInvite(inv *domain.Invite) error {
	key := inviteKey(inv.Code)
	taken, err := t.exists(key)
	if err != nil {
		return err
	}
	if taken {
		return store.ErrAlreadyExists
	}
	if err := t.setJSON(key, inv); err != nil {
		return err
	}
	return t.set(invitesCreatorKey(inv.CreatedBy, inv.CreatedAt, inv.Code), []byte(inv.Code))
}

func (t *tx) UpdateInvite(inv *domain.Invite) error {
	key := inviteKey(inv.Code)
	found, err := t.exists(key)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	return t.setJSON(key, inv)
}

func (t *tx) DeleteInvite(code string) error {
	existing, err := t.GetInvite(code)
	if err != nil {
		return err
	}
	if err := t.del(inviteKey(code)); err != nil {
		return err
	}
	return t.del(invitesCreatorKey(existing.CreatedBy, existing.CreatedAt, existing.Code))
}

// Activity

func (t *tx) GetActivity(id string) (*domain.ActivityRecord, error) {
	var a domain.ActivityRecord
	found, err := t.getJSON(activityKey(id), &a)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (t *tx) CreateActivity(a *domain.ActivityRecord) error {
	key := activityKey(a.ID)
	taken, err := t.exists(key)
	if err != nil {
		return err
	}
	if taken {
		return store.ErrAlreadyExists
	}
	if err := t.setJSON(key, a); err != nil {
		return err
	}
	return t.set(activityTargetKey(a.TargetUserID, a.CreatedAt, a.ID), []byte(a.ID))
}
