package api

import (
	"github.com/dseinapp/dsein-server/internal/service"
)

// Services groups the business logic used by the API server.
type Services struct {
	Directory *service.DirectoryService
	Follow    *service.FollowService
	Like      *service.LikeService
	Invite    *service.InviteService
	Activity  *service.ActivityService
}
