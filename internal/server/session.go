package server

import (
	"context"

	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/rpc"
)

const PathSession = "auth.session"

// SessionView is what auth.session reports about the caller.
type SessionView struct {
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// NewSessionRouter exposes auth.session on procedure, which should be public. Anonymous
// callers get a null result.
func NewSessionRouter(procedure rpc.Procedure) (*rpc.Router, error) {
	return rpc.NewRouter(rpc.Query(procedure, PathSession, currentSession))
}

func currentSession(_ context.Context, call rpc.Call, _ struct{}) (*SessionView, error) {
	if call.Session == nil {
		return nil, nil
	}
	return &SessionView{
		UserID:      call.Session.UserID,
		Email:       call.Session.Email,
		DisplayName: call.Session.DisplayName,
	}, nil
}
