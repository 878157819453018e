package rpc

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Kind distinguishes read-only queries from mutations.
type Kind string

const (
	KindQuery    Kind = "query"
	KindMutation Kind = "mutation"
)

// Session is the caller identity attached to a call. A nil *Session means anonymous.
type Session struct {
	UserID      string
	Email       string
	DisplayName string
}

// Call is the immutable per-invocation value threaded through the middleware chain.
// Middlewares that need to change it pass a modified copy to next.
type Call struct {
	Path    string
	Kind    Kind
	Session *Session
}

// UserID returns the session user id or an empty string for anonymous calls.
func (c Call) UserID() string {
	if c.Session == nil {
		return ""
	}
	return c.Session.UserID
}

// Next continues the chain with the given context and call.
type Next func(ctx context.Context, call Call) (any, error)

// Middleware wraps the remainder of the chain. It must call next to continue.
type Middleware func(ctx context.Context, call Call, next Next) (any, error)

// Procedure is an ordered, immutable list of middlewares. The first middleware added
// is the outermost.
type Procedure struct {
	middlewares []Middleware
}

// Use returns a new procedure with middleware appended innermost.
func (p Procedure) Use(middleware Middleware) Procedure {
	middlewares := make([]Middleware, 0, len(p.middlewares)+1)
	middlewares = append(middlewares, p.middlewares...)
	middlewares = append(middlewares, middleware)
	return Procedure{middlewares: middlewares}
}

// Run executes the middleware chain around handler.
func (p Procedure) Run(ctx context.Context, call Call, handler Next) (any, error) {
	next := handler
	for index := len(p.middlewares) - 1; index >= 0; index-- {
		middleware := p.middlewares[index]
		inner := next
		next = func(ctx context.Context, call Call) (any, error) {
			return middleware(ctx, call, inner)
		}
	}
	return next(ctx, call)
}

// UserDirectory answers whether a session's user still exists.
type UserDirectory interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// BuilderConfig wires the collaborators shared by all procedures.
type BuilderConfig struct {
	Tracer trace.Tracer
	Users  UserDirectory
	Logger *zap.Logger
}

// Builder hands out the two base procedures every operation is built from.
type Builder struct {
	public    Procedure
	protected Procedure
}

var (
	errMissingTracer = errors.New("rpc: tracer required")
	errMissingUsers  = errors.New("rpc: user directory required")
)

// NewBuilder constructs the public (tracing) and protected (tracing, auth) procedures.
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.Tracer == nil {
		return nil, errMissingTracer
	}
	if cfg.Users == nil {
		return nil, errMissingUsers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	public := Procedure{}.Use(TracingMiddleware(cfg.Tracer))
	return &Builder{
		public:    public,
		protected: public.Use(AuthMiddleware(cfg.Users, logger)),
	}, nil
}

// Public returns the tracing-only procedure.
func (b *Builder) Public() Procedure {
	return b.public
}

// Protected returns the procedure that requires a live authenticated user.
func (b *Builder) Protected() Procedure {
	return b.protected
}
