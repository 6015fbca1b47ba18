package domain

import "time"

// FollowEdge records that FollowerID follows FollowingID.
// The document existing is the relationship; there is no flag to flip.
type FollowEdge struct {
	ID          string    `json:"id" bson:"_id"`
	FollowerID  string    `json:"follower_id" bson:"follower_id"`
	FollowingID string    `json:"following_id" bson:"following_id"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// FollowEdgeID returns the composite key of the edge follower -> following.
func FollowEdgeID(followerID, followingID string) string {
	return compositeKey(followerID, followingID)
}

// NewFollowEdge builds an edge stamped with the given time.
func NewFollowEdge(followerID, followingID string, at time.Time) *FollowEdge {
	return &FollowEdge{
		ID:          FollowEdgeID(followerID, followingID),
		FollowerID:  followerID,
		FollowingID: followingID,
		CreatedAt:   at.UTC(),
	}
}

// LikeEdge records that UserID liked PostID. PostOwnerID is copied in so
// likes can be listed by the owner without touching posts.
type LikeEdge struct {
	ID          string    `json:"id" bson:"_id"`
	UserID      string    `json:"user_id" bson:"user_id"`
	PostID      string    `json:"post_id" bson:"post_id"`
	PostOwnerID string    `json:"post_owner_id" bson:"post_owner_id"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// LikeEdgeID returns the composite key of a like.
func LikeEdgeID(userID, postID string) string {
	return compositeKey(userID, postID)
}

// NewLikeEdge builds a like stamped with the given time.
func NewLikeEdge(userID, postID, postOwnerID string, at time.Time) *LikeEdge {
	return &LikeEdge{
		ID:          LikeEdgeID(userID, postID),
		UserID:      userID,
		PostID:      postID,
		PostOwnerID: postOwnerID,
		CreatedAt:   at.UTC(),
	}
}
