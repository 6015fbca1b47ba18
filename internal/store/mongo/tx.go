package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dseinapp/dsein-server/internal/domain"
	"github.com/dseinapp/dsein-server/internal/store"
)

// tx implements store.Tx. ctx is a session context inside Update and a plain
// context for single reads.
type tx struct {
	ctx context.Context
	db  *mongo.Database
}

var _ store.Tx = (*tx)(nil)

func (t *tx) c(name string) *mongo.Collection { return t.db.Collection(name) }

func (t *tx) findOne(collection string, filter bson.M, out any) error {
	return translate(t.c(collection).FindOne(t.ctx, filter).Decode(out))
}

func (t *tx) insert(collection string, doc any) error {
	_, err := t.c(collection).InsertOne(t.ctx, doc)
	return translate(err)
}

func (t *tx) replace(collection, id string, doc any) error {
	res, err := t.c(collection).ReplaceOne(t.ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) deleteOne(collection, id string) error {
	res, err := t.c(collection).DeleteOne(t.ctx, bson.M{"_id": id})
	if err != nil {
		return translate(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) count(collection string, filter bson.M) (int, error) {
	n, err := t.c(collection).CountDocuments(t.ctx, filter)
	if err != nil {
		return 0, translate(err)
	}
	return int(n), nil
}

func (t *tx) GetUser(id string) (*domain.User, error) {
	var u domain.User
	if err := t.findOne(usersCollection, bson.M{"_id": id}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *tx) GetUserByUsername(username string) (*domain.User, error) {
	var u domain.User
	if err := t.findOne(usersCollection, bson.M{"username": username}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser relies on the _id and unique username indexes for duplicate detection.
func (t *tx) CreateUser(u *domain.User) error {
	return t.insert(usersCollection, u)
}

func (t *tx) UpdateUser(u *domain.User) error {
	return t.replace(usersCollection, u.ID, u)
}

func (t *tx) GetFollow(followerID, followingID string) (*domain.FollowEdge, error) {
	var e domain.FollowEdge
	if err := t.findOne(followsCollection, bson.M{"_id": domain.FollowEdgeID(followerID, followingID)}, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (t *tx) CreateFollow(e *domain.FollowEdge) error {
	return t.insert(followsCollection, e)
}

func (t *tx) DeleteFollow(followerID, followingID string) error {
	return t.deleteOne(followsCollection, domain.FollowEdgeID(followerID, followingID))
}

func (t *tx) CountFollowers(userID string) (int, error) {
	return t.count(followsCollection, bson.M{"following_id": userID})
}

func (t *tx) CountFollowing(userID string) (int, error) {
	return t.count(followsCollection, bson.M{"follower_id": userID})
}

func (t *tx) GetLike(userID, postID string) (*domain.LikeEdge, error) {
	var l domain.LikeEdge
	if err := t.findOne(likesCollection, bson.M{"_id": domain.LikeEdgeID(userID, postID)}, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (t *tx) CreateLike(l *domain.LikeEdge) error {
	return t.insert(likesCollection, l)
}

func (t *tx) DeleteLike(userID, postID string) error {
	return t.deleteOne(likesCollection, domain.LikeEdgeID(userID, postID))
}

func (t *tx) GetInvite(code string) (*domain.Invite, error) {
	var inv domain.Invite
	if err := t.findOne(invitesCollection, bson.M{"_id": code}, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (t *tx) CreateInvite(inv *domain.Invite) error {
	return t.insert(invitesCollection, inv)
}

func (t *tx) UpdateInvite(inv *domain.Invite) error {
	return t.replace(invitesCollection, inv.Code, inv)
}

func (t *tx) DeleteInvite(code string) error {
	return t.deleteOne(invitesCollection, code)
}

func (t *tx) GetActivity(id string) (*domain.ActivityRecord, error) {
	var a domain.ActivityRecord
	if err := t.findOne(activityCollection, bson.M{"_id": id}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *tx) CreateActivity(a *domain.ActivityRecord) error {
	return t.insert(activityCollection, a)
}
