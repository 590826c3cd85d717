package gate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gatehouse-io/gatehouse/internal/ledger"
	"github.com/gatehouse-io/gatehouse/internal/observability"
	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Middleware wires the request mediation pipeline for HTTP handlers:
// every protected call is journaled, gated, executed, and journaled
// again with its terminal disposition.
type Middleware struct {
	Gate    *Gate
	Ledger  *ledger.Ledger
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// mediation is the per-request mutable state threaded through context.
// The trace is minted at ingress; the error code is set by whichever
// layer fails the request first.
type mediation struct {
	mu      sync.Mutex
	trace   ledger.Trace
	errCode string
}

type mediationContextKey struct{}

func mediationFromContext(ctx context.Context) *mediation {
	m, _ := ctx.Value(mediationContextKey{}).(*mediation)
	return m
}

// TraceID returns the ledger trace id for the current request, or ""
// outside a mediated route.
func TraceID(ctx context.Context) string {
	return shared.TraceIDFromContext(ctx)
}

// Trace journals the request lifecycle around the rest of the chain.
// Begin runs before authorization, so anonymous and rejected requests
// are traced identically to successful ones; the terminal entry is
// recorded after the handler returns.
func (m *Middleware) Trace(source Source) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var actorID *int64
			if sess := shared.SessionFromContext(ctx); sess != nil && sess.ActorID() != 0 {
				id := sess.ActorID()
				actorID = &id
			}

			med := &mediation{trace: m.Ledger.Begin(ctx, string(source), r.URL.Path, actorID)}
			ctx = context.WithValue(ctx, mediationContextKey{}, med)
			ctx = shared.ContextWithTraceID(ctx, med.trace.ID)
			w.Header().Set(httpx.TraceHeader, med.trace.ID)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			med.mu.Lock()
			trace, errCode := med.trace, med.errCode
			med.mu.Unlock()
			if errCode == "" && recorder.status >= http.StatusBadRequest {
				errCode = fmt.Sprintf("HTTP_%d", recorder.status)
			}
			// The request context is often already canceled here: client
			// disconnects on streams, timed-out requests. The terminal
			// entry must still reach the broker or the submitted entry
			// is left uncorrelatable.
			terminal := context.WithoutCancel(ctx)
			if errCode != "" {
				m.Ledger.RecordOutcome(terminal, trace, ledger.DispositionFailed, errCode)
				return
			}
			m.Ledger.RecordOutcome(terminal, trace, ledger.DispositionCompleted, "")
		})
	}
}

// Require gates a route on (resource, action) without a target record,
// demanding the given scope. Collection and create endpoints use this;
// single-record endpoints call Authorize with the loaded record instead.
func (m *Middleware) Require(resource, action string, scope rbac.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := m.evaluate(r, resource, action, scope, nil)
			if !decision.Granted {
				m.deny(w, r, decision)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithDecision(r.Context(), decision)))
		})
	}
}

// RequireIdentity gates a route on credential resolution alone: the
// caller must be an identified, active, unlocked actor, but no
// permission triple is demanded. Logout and delegated token management
// run behind it.
func (m *Middleware) RequireIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := m.buildRequest(r, "", "", "", nil)
			req.IdentityOnly = true
			decision := m.decide(r.Context(), req)
			if !decision.Granted {
				m.deny(w, r, decision)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithDecision(r.Context(), decision)))
		})
	}
}

// Authorize evaluates the gate for a handler that has already loaded
// its target record. The caller must stop on a denied decision; Deny
// renders the response and journals the failure.
func (m *Middleware) Authorize(r *http.Request, resource, action string, record rbac.OwnedRecord) Decision {
	return m.evaluate(r, resource, action, "", record)
}

// Deny renders a denial and marks the trace failed.
func (m *Middleware) Deny(w http.ResponseWriter, r *http.Request, decision Decision) {
	m.deny(w, r, decision)
}

// Fail marks the current trace failed with a typed code. Handlers use
// it for business failures that already produced a response.
func (m *Middleware) Fail(ctx context.Context, code shared.ErrorCode) {
	if med := mediationFromContext(ctx); med != nil {
		med.mu.Lock()
		med.errCode = string(code)
		med.mu.Unlock()
	}
}

func (m *Middleware) evaluate(r *http.Request, resource, action string, scope rbac.Scope, record rbac.OwnedRecord) Decision {
	return m.decide(r.Context(), m.buildRequest(r, resource, action, scope, record))
}

func (m *Middleware) buildRequest(r *http.Request, resource, action string, scope rbac.Scope, record rbac.OwnedRecord) Request {
	req := Request{
		Source:        sourceOf(r),
		Endpoint:      r.URL.Path,
		Resource:      resource,
		Action:        action,
		RequiredScope: scope,
		Record:        record,
		BearerSecret:  bearerSecret(r),
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		req.SessionID = sess.ID
	}
	return req
}

func (m *Middleware) decide(ctx context.Context, req Request) Decision {
	decision := m.Gate.Evaluate(ctx, req)
	m.Metrics.GateDecision(outcomeLabel(decision))
	if decision.Granted && decision.Actor != nil {
		if med := mediationFromContext(ctx); med != nil {
			med.mu.Lock()
			med.trace.SetActor(decision.Actor.ID)
			med.mu.Unlock()
		}
	}
	return decision
}

func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, decision Decision) {
	ctx := r.Context()
	if med := mediationFromContext(ctx); med != nil {
		med.mu.Lock()
		med.errCode = string(decision.Reason)
		if decision.Actor != nil {
			med.trace.SetActor(decision.Actor.ID)
		}
		med.mu.Unlock()
	}
	httpx.RespondCode(w, decision.Reason, "", shared.TraceIDFromContext(ctx))
}

func sourceOf(r *http.Request) Source {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		return SourceForm
	}
	return SourceHTTP
}

func bearerSecret(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func outcomeLabel(d Decision) string {
	switch {
	case d.Public:
		return "public"
	case d.Granted:
		return "granted"
	default:
		return "denied"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
