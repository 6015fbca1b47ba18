package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dseinapp/dsein-server/internal/domain"
)

func (s *Server) registerActivityRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listActivity",
		Method:      http.MethodGet,
		Path:        "/api/v1/me/activity",
		Summary:     "List activity",
		Description: "Returns activity addressed to the caller, newest first",
		Tags:        []string{"Activity"},
		Security:    []map[string][]string{{"gateway": {}}},
	}, s.handleListActivity)
}

// ActivityOutput lists activity records.
type ActivityOutput struct {
	Body struct {
		Activities []*domain.ActivityRecord `json:"activities" doc:"Activity records, newest first"`
	}
}

func (s *Server) handleListActivity(ctx context.Context, input *LimitInput) (*ActivityOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.services.Activity.ListForUser(ctx, userID, input.Limit)
	if err != nil {
		return nil, err
	}

	out := &ActivityOutput{}
	out.Body.Activities = records
	return out, nil
}
