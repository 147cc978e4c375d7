package request

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/warden/internal/entity"
	"github.com/roach88/warden/internal/permission"
	"github.com/roach88/warden/internal/schedule"
)

// Handler executes one request type. Handlers may block on I/O; the
// router waits for completion before producing the response.
type Handler func(ctx context.Context, req Request) (any, error)

// Router validates, authorizes, and dispatches requests.
//
// Process never lets an error escape: every failure mode is converted
// into an {ok:false, error} response. The only outward panic source
// would be a bug in the router itself.
//
// Handlers run with the internal mutex released, so a handler may call
// back into the engine that owns the router.
type Router struct {
	mu       sync.Mutex
	matrix   *permission.Matrix
	handlers map[Type]Handler
	stats    Stats
}

// NewRouter creates a router authorizing against the given matrix.
func NewRouter(matrix *permission.Matrix) *Router {
	return &Router{
		matrix:   matrix,
		handlers: make(map[Type]Handler),
	}
}

// RegisterHandler binds a handler to a request type. The string-keyed
// registry is the intentional late-binding seam for injecting external
// collaborators.
func (r *Router) RegisterHandler(t Type, h Handler) error {
	if t == "" {
		return fmt.Errorf("register handler: request type is required")
	}
	if h == nil {
		return fmt.Errorf("register handler: handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
	return nil
}

// HasHandler reports whether a handler is registered for the type.
func (r *Router) HasHandler(t Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handlers[t]
	return ok
}

// Process runs the Received → Validated → Authorized → Executed →
// Responded pipeline. Each stage is timed independently; any gate
// failure short-circuits straight to the response.
func (r *Router) Process(ctx context.Context, req Request) Response {
	started := time.Now()

	var (
		validateMs, authzMs, execMs int64
	)
	resp := func() Response {
		// Stage 1: structural + payload validation.
		stage := time.Now()
		errInfo := validate(req)
		validateMs = time.Since(stage).Milliseconds()
		if errInfo != nil {
			return r.fail(req, errInfo)
		}

		// Stage 2: authorization.
		stage = time.Now()
		caps := RequiredCapabilities(req.Type)
		if len(caps) > 0 {
			ok, missing := r.matrix.CheckAll(req.ActorID, req.Role, caps, req.ID)
			authzMs = time.Since(stage).Milliseconds()
			if !ok {
				names := make([]any, len(missing))
				for i, c := range missing {
					names[i] = string(c)
				}
				return r.fail(req, &ErrorInfo{
					Code:    CodePermissionDenied,
					Message: fmt.Sprintf("role %s denied %s", req.Role, req.Type),
					Details: map[string]any{"missing": names},
				})
			}
		}

		// Stage 3: execution.
		stage = time.Now()
		r.mu.Lock()
		handler, ok := r.handlers[req.Type]
		r.mu.Unlock()
		if !ok {
			// A supported type with no handler is a wiring bug, not a
			// user error.
			return r.fail(req, &ErrorInfo{
				Code:    CodeInternalError,
				Message: fmt.Sprintf("no handler registered for %s", req.Type),
			})
		}

		result, err := runHandler(ctx, handler, req)
		execMs = time.Since(stage).Milliseconds()
		if err != nil {
			return r.fail(req, errorInfo(err))
		}
		return Response{RequestID: req.ID, OK: true, Result: result}
	}()

	resp.ElapsedMs = time.Since(started).Milliseconds()
	r.record(resp)

	slog.Debug("request processed",
		"request_id", req.ID,
		"type", req.Type,
		"actor_id", req.ActorID,
		"ok", resp.OK,
		"validate_ms", validateMs,
		"authz_ms", authzMs,
		"exec_ms", execMs,
		"elapsed_ms", resp.ElapsedMs,
	)
	return resp
}

// Stats returns a copy of the running statistics.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Router) fail(req Request, info *ErrorInfo) Response {
	return Response{RequestID: req.ID, OK: false, Error: info}
}

func (r *Router) record(resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.Total++
	if resp.OK {
		r.stats.Succeeded++
	} else {
		r.stats.Failed++
	}
	// Rolling average without retaining per-request samples.
	r.stats.AvgLatencyMs += (float64(resp.ElapsedMs) - r.stats.AvgLatencyMs) / float64(r.stats.Total)
}

// runHandler invokes a handler, converting a panic into an error so the
// router never propagates an exception.
func runHandler(ctx context.Context, h Handler, req Request) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h(ctx, req)
}

// errorInfo flattens a handler error into the stable code taxonomy.
// Typed registry and scheduler errors keep their codes; anything else
// is an internal error.
func errorInfo(err error) *ErrorInfo {
	var entErr *entity.Error
	if errors.As(err, &entErr) {
		return &ErrorInfo{
			Code:    entErr.Code,
			Message: entErr.Message,
			Details: map[string]any{"entityId": entErr.EntityID},
		}
	}
	var schedErr *schedule.Error
	if errors.As(err, &schedErr) {
		info := &ErrorInfo{Code: schedErr.Code, Message: schedErr.Message}
		if schedErr.ActionID != "" {
			info.Details = map[string]any{"actionId": schedErr.ActionID}
		}
		return info
	}
	return &ErrorInfo{Code: CodeInternalError, Message: err.Error()}
}
