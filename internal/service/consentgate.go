// Package service contains the application's composition root: the Consent
// Gate, which wires the policy engine, channel, host-approval cache, and
// audit sink together into the single decide(action) entry point.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/audit"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/channel"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/policy"
	"github.com/Sentinel-Gate/acp-gate/internal/telemetry"
)

// defaultAskTimeout is used when a matched rule carries no explicit timeout.
const defaultAskTimeout = 120 * time.Second

// HostApprovalCache is the Consent Gate's exclusive cache of recently
// approved HTTP hosts (spec §3 Ownership, §4.D step 3).
type HostApprovalCache interface {
	Insert(host string, ttl time.Duration)
	Approved(host string) bool
}

// ConsentGate is the public entry point of the gateway: decide(action) ->
// verdict. It owns the host-approval cache; the policy engine owns
// rate-limit state; the channel owns in-flight prompts.
type ConsentGate struct {
	policy  *policy.Engine
	channel channel.Channel
	cache   HostApprovalCache
	sink    audit.Sink
	logger  *slog.Logger
	metrics *telemetry.Metrics

	hostApprovalTTL time.Duration
	clock           func() time.Time
}

// New builds a ConsentGate. hostApprovalTTL is read once at construction
// time from ACP_HTTP_HOST_APPROVAL_TTL_SEC (default 180s per spec §4.D).
// metrics may be nil; a nil Metrics disables recording without branching at
// every call site (see recordDecision).
func New(engine *policy.Engine, ch channel.Channel, cache HostApprovalCache, sink audit.Sink, hostApprovalTTL time.Duration, logger *slog.Logger, metrics *telemetry.Metrics) *ConsentGate {
	if hostApprovalTTL <= 0 {
		hostApprovalTTL = 180 * time.Second
	}
	return &ConsentGate{
		policy:          engine,
		channel:         ch,
		cache:           cache,
		sink:            sink,
		logger:          logger,
		metrics:         metrics,
		hostApprovalTTL: hostApprovalTTL,
		clock:           time.Now,
	}
}

// Decide runs the spec §4.D algorithm: evaluate policy, resolve an ask
// verdict through the host cache or the channel, cache an HTTP allow, audit
// the outcome, and return the verdict. Decide never panics; an ask blocks
// for the resolved ask timeout plus any time the channel spends waiting for
// earlier prompts to finish.
func (g *ConsentGate) Decide(ctx context.Context, a action.Action) action.Verdict {
	ctx, span := otel.Tracer(telemetry.Tracer).Start(ctx, "ConsentGate.Decide",
		trace.WithAttributes(
			attribute.String("action.kind", string(a.Kind)),
			attribute.String("action.name", a.Name),
		),
	)
	defer span.End()

	start := g.clock()
	result := g.policy.Evaluate(a)

	verdict := g.resolveVerdict(ctx, a, result)

	g.recordDecision(a, verdict, g.clock().Sub(start))
	if !verdict.Allowed() {
		span.SetStatus(codes.Error, verdict.Reason)
	}
	span.SetAttributes(attribute.String("verdict", string(verdict.Decision)))

	g.audit(ctx, a, verdict)
	return verdict
}

// recordDecision updates Prometheus counters/histograms. Safe to call with a
// nil metrics (disabled).
func (g *ConsentGate) recordDecision(a action.Action, verdict action.Verdict, elapsed time.Duration) {
	if g.metrics == nil {
		return
	}
	kind := string(a.Kind)
	g.metrics.DecisionsTotal.WithLabelValues(kind, string(verdict.Decision)).Inc()
	g.metrics.DecisionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if strings.Contains(verdict.Reason, "Rate limit exceeded") {
		g.metrics.RateLimitedTotal.WithLabelValues(kind).Inc()
	}
}

// resolveVerdict maps a PolicyResult to a final verdict, prompting through
// the channel (or short-circuiting via the host-approval cache) when the
// policy says "ask".
func (g *ConsentGate) resolveVerdict(ctx context.Context, a action.Action, result policy.PolicyResult) action.Verdict {
	switch result.Action {
	case policy.ActionAllow:
		return action.Allow(result.Reason)
	case policy.ActionDeny:
		return action.Deny(result.Reason)
	case policy.ActionAsk:
		return g.ask(ctx, a, result)
	default:
		// Fail-closed default: any unknown policy action code denies.
		return action.Deny(result.Reason)
	}
}

// ask implements spec §4.D step 3: consult the host-approval cache for HTTP
// actions, otherwise prompt the channel and cache an HTTP allow on success.
func (g *ConsentGate) ask(ctx context.Context, a action.Action, result policy.PolicyResult) action.Verdict {
	if a.Kind == action.KindHTTP && a.Host != "" && g.cache != nil && g.cache.Approved(a.Host) {
		return action.Allow("Approved by human (cached host approval)")
	}

	timeout := defaultAskTimeout
	if result.Timeout > 0 {
		timeout = time.Duration(result.Timeout) * time.Second
	}

	answer, err := g.channel.Ask(ctx, a, timeout)
	if err != nil {
		g.logger.Error("consent gate: channel ask failed", "error", err, "action", a.Name)
		return action.Deny("Channel error: " + err.Error())
	}
	if !answer.Approved {
		reason := answer.Reason
		if reason == "" {
			reason = "Denied by operator"
		}
		return action.Deny(reason)
	}

	if a.Kind == action.KindHTTP && a.Host != "" && g.cache != nil {
		g.cache.Insert(a.Host, g.hostApprovalTTL)
	}
	return action.Allow("Approved by human")
}

// audit appends the (action, verdict) pair. A sink failure is logged, never
// surfaced to the caller: the gate's decision already happened.
func (g *ConsentGate) audit(ctx context.Context, a action.Action, verdict action.Verdict) {
	entry := audit.Entry{
		Timestamp: g.clock().UTC(),
		Action:    a,
		Decision:  verdict.Decision,
		Reason:    verdict.Reason,
	}
	if err := g.sink.Append(ctx, entry); err != nil {
		g.logger.Error("consent gate: audit append failed", "error", err)
	}
}
