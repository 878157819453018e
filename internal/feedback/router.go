package feedback

import "github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/rpc"

const (
	PathList        = "post.list"
	PathUnreadCount = "post.unreadCount"
	PathByID        = "post.byId"
	PathAdd         = "post.add"
	PathSetRead     = "post.setRead"
)

// Router exposes the post operations, typed for in-process callers.
type Router struct {
	List        *rpc.Operation[ListInput, ListOutput]
	UnreadCount *rpc.Operation[struct{}, UnreadCountOutput]
	ByID        *rpc.Operation[ByIDInput, ProcessedItem]
	Add         *rpc.Operation[AddInput, PostSummary]
	SetRead     *rpc.Operation[SetReadInput, ReadReceipt]
}

// NewRouter binds every operation of service to procedure.
func NewRouter(procedure rpc.Procedure, service *Service) *Router {
	return &Router{
		List:        rpc.Query(procedure, PathList, service.List),
		UnreadCount: rpc.Query(procedure, PathUnreadCount, service.UnreadCount),
		ByID:        rpc.Query(procedure, PathByID, service.ByID),
		Add:         rpc.Mutation(procedure, PathAdd, service.Add),
		SetRead:     rpc.Mutation(procedure, PathSetRead, service.SetRead),
	}
}

// RPC returns the transport-facing router.
func (r *Router) RPC() (*rpc.Router, error) {
	return rpc.NewRouter(r.List, r.UnreadCount, r.ByID, r.Add, r.SetRead)
}
