// Package perf holds latency and throughput checks for the hot paths:
// gate evaluation and permission matching. The budgets are generous;
// the point is catching order-of-magnitude regressions, not tuning.
package perf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gate"
	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

type staticResolver struct {
	actorID int64
	token   *gate.TokenCredential
}

func (r staticResolver) ResolveSession(context.Context, string) (int64, bool, error) {
	return r.actorID, r.actorID != 0, nil
}

func (r staticResolver) ResolveToken(context.Context, string) (*gate.TokenCredential, error) {
	if r.token == nil {
		return nil, gate.ErrInvalidToken
	}
	return r.token, nil
}

type staticPerms struct {
	actor  *rbac.Actor
	grants []rbac.Permission
}

func (p staticPerms) Actor(context.Context, int64) (*rbac.Actor, error) {
	return p.actor, nil
}

func (p staticPerms) EffectivePermissions(context.Context, int64) ([]rbac.Permission, error) {
	return p.grants, nil
}

// wideGrants builds a grant set the size of a heavyweight admin role.
func wideGrants(resources int) []rbac.Permission {
	var raw []string
	for i := 0; i < resources; i++ {
		resource := fmt.Sprintf("resource%d", i)
		raw = append(raw,
			resource+":read:all",
			resource+":create:group",
			resource+":update:own",
			resource+":delete:own",
		)
	}
	perms, err := rbac.ParseSet(raw)
	if err != nil {
		panic(err)
	}
	return perms
}

func sessionGate(grants []rbac.Permission) *gate.Gate {
	actor := &rbac.Actor{ID: 1, Handle: "bench", Active: true}
	return gate.New(gate.Config{
		Credentials: staticResolver{actorID: 1},
		Permissions: staticPerms{actor: actor, grants: grants},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func BenchmarkGateEvaluateSession(b *testing.B) {
	g := sessionGate(wideGrants(25))
	req := gate.Request{
		Source:        gate.SourceHTTP,
		Endpoint:      "/resource12",
		Resource:      "resource12",
		Action:        "read",
		RequiredScope: rbac.ScopeOwn,
		SessionID:     "bench-session",
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		decision := g.Evaluate(ctx, req)
		if !decision.Granted {
			b.Fatalf("unexpected denial: %s", decision.Reason)
		}
	}
}

func BenchmarkGateEvaluateToken(b *testing.B) {
	grants := wideGrants(25)
	subset := grants[:40]
	actor := &rbac.Actor{ID: 1, Handle: "bench", Active: true}
	g := gate.New(gate.Config{
		Credentials: staticResolver{token: &gate.TokenCredential{IssuerID: 1, Permissions: subset}},
		Permissions: staticPerms{actor: actor, grants: grants},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	req := gate.Request{
		Source:        gate.SourceHTTP,
		Endpoint:      "/resource5",
		Resource:      "resource5",
		Action:        "read",
		RequiredScope: rbac.ScopeOwn,
		BearerSecret:  "bench-secret",
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		decision := g.Evaluate(ctx, req)
		if !decision.Granted {
			b.Fatalf("unexpected denial: %s", decision.Reason)
		}
	}
}

func BenchmarkMatches(b *testing.B) {
	grants := wideGrants(50)
	requested := rbac.MustParse("resource49:read:own")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !rbac.Matches(grants, requested) {
			b.Fatal("expected a match")
		}
	}
}

func BenchmarkIntersect(b *testing.B) {
	issuer := wideGrants(50)
	declared := wideGrants(30)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if got := rbac.Intersect(issuer, declared); len(got) == 0 {
			b.Fatal("expected a non-empty intersection")
		}
	}
}

// TestGateDecisionLatencyBudget measures in-process decision latency
// with wide grant sets. Well under a millisecond on any hardware this
// runs on; the budget only guards against accidental quadratic blowups.
func TestGateDecisionLatencyBudget(t *testing.T) {
	g := sessionGate(wideGrants(100))
	req := gate.Request{
		Source:        gate.SourceHTTP,
		Endpoint:      "/resource99",
		Resource:      "resource99",
		Action:        "read",
		RequiredScope: rbac.ScopeOwn,
		SessionID:     "bench-session",
	}
	ctx := context.Background()

	const samples = 200
	durations := make([]time.Duration, 0, samples)
	for i := 0; i < samples; i++ {
		start := time.Now()
		decision := g.Evaluate(ctx, req)
		durations = append(durations, time.Since(start))
		if !decision.Granted {
			t.Fatalf("unexpected denial: %s", decision.Reason)
		}
	}

	if p95 := percentile95(durations); p95 > 5*time.Millisecond {
		t.Fatalf("gate decision latency regression: p95=%s", p95)
	}
}

// TestDenialIsNotSlower guards the fail-closed path: denials must not
// pay more than grants do.
func TestDenialIsNotSlower(t *testing.T) {
	g := sessionGate(wideGrants(100))
	req := gate.Request{
		Source:        gate.SourceHTTP,
		Endpoint:      "/nothing",
		Resource:      "nothing",
		Action:        "read",
		RequiredScope: rbac.ScopeOwn,
		SessionID:     "bench-session",
	}
	ctx := context.Background()

	const samples = 200
	durations := make([]time.Duration, 0, samples)
	for i := 0; i < samples; i++ {
		start := time.Now()
		decision := g.Evaluate(ctx, req)
		durations = append(durations, time.Since(start))
		if decision.Granted {
			t.Fatal("expected a denial")
		}
		if decision.Reason != shared.CodePermissionDenied {
			t.Fatalf("unexpected reason %s", decision.Reason)
		}
	}

	if p95 := percentile95(durations); p95 > 5*time.Millisecond {
		t.Fatalf("denial latency regression: p95=%s", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
