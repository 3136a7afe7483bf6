package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sensorcal/sensorcal/pkg/types"
	"github.com/sensorcal/sensorcal/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
	deliverTimeout    = 30 * time.Second
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	RunID      string     `json:"run_id"`
	Severity   string     `json:"severity"`
	Condition  string     `json:"condition"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

// Sink receives every firing and resolved transition.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, a Alert) error
}

type compiledRule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules against the latest reading of each run and
// delivers transitions to its sinks.
//
// Engine is safe for concurrent use.
type Engine struct {
	sinks []Sink

	mu       sync.Mutex
	rules    []compiledRule
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts
	now      func() time.Time

	inflight sync.WaitGroup
}

// New creates an Engine from the alert configuration. Webhook sinks are built
// from cfg.Webhooks; extra sinks (e.g. Kafka) are appended. Rules whose
// condition does not parse are logged and skipped.
func New(cfg config.AlertsConfig, extra ...Sink) *Engine {
	e := &Engine{
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, wh := range cfg.Webhooks {
		e.sinks = append(e.sinks, newWebhookSink(wh))
	}
	e.sinks = append(e.sinks, extra...)
	e.SetRules(cfg.Rules)
	return e
}

// SetRules replaces the rule set. Alerts of rules that no longer exist are
// dropped without a resolve notification.
func (e *Engine) SetRules(rules []config.AlertRule) {
	compiled := make([]compiledRule, 0, len(rules))
	names := make(map[string]bool, len(rules))
	for _, r := range rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			slog.Error("alerts: skipping rule", "rule", r.Name, "err", err)
			continue
		}
		compiled = append(compiled, compiledRule{AlertRule: r, cond: c})
		names[r.Name] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = compiled
	for name := range e.active {
		if !names[name] {
			delete(e.active, name)
		}
	}
}

// Evaluate tests all rules against r, the last reading of run runID.
// Alerts that fire are stored and delivered asynchronously. Alerts that were
// firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(runID string, r types.EnrichedReading) {
	e.mu.Lock()
	rules := e.rules
	e.mu.Unlock()
	if len(rules) == 0 {
		return
	}

	now := e.now()
	for _, rule := range rules {
		key := rule.Name
		fires, value := rule.cond.eval(&r)

		e.mu.Lock()
		if fires {
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if _, firing := e.active[key]; firing || now.Sub(e.lastFire[key]) <= cooldown {
				e.mu.Unlock()
				continue
			}
			sev := rule.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:        uuid.NewString(),
				RuleName:  rule.Name,
				RunID:     runID,
				Severity:  sev,
				Condition: rule.Condition,
				Value:     value,
				Message: fmt.Sprintf("[%s] %s fired on run %s: %s (measured %.2f, health %.1f, alert %s)",
					sev, rule.Name, runID, rule.Condition, r.Measured, r.Health, r.Alert),
				FiredAt: now,
				State:   StateFiring,
			}
			e.active[key] = a
			e.lastFire[key] = now
			alertCopy := *a
			e.mu.Unlock()

			slog.Warn("alerts: fired",
				"rule", rule.Name,
				"run_id", runID,
				"value", value,
				"severity", sev,
			)
			e.dispatch(alertCopy)
			continue
		}

		a, ok := e.active[key]
		if !ok {
			e.mu.Unlock()
			continue
		}
		resolved := now
		a.State = StateResolved
		a.ResolvedAt = &resolved
		delete(e.active, key)

		e.history = append(e.history, a)
		if len(e.history) > maxHistoryLen {
			e.history = e.history[len(e.history)-maxHistoryLen:]
		}
		alertCopy := *a
		e.mu.Unlock()

		slog.Info("alerts: resolved", "rule", rule.Name, "run_id", runID)
		e.dispatch(alertCopy)
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Firing reports how many alerts are currently firing.
func (e *Engine) Firing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Wait blocks until every in-flight delivery has finished.
func (e *Engine) Wait() { e.inflight.Wait() }

func (e *Engine) dispatch(a Alert) {
	if len(e.sinks) == 0 {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		defer cancel()
		e.deliver(ctx, a)
	}()
}

// deliver sends a to every sink. Errors are logged but do not affect the caller.
func (e *Engine) deliver(ctx context.Context, a Alert) {
	for _, s := range e.sinks {
		if err := s.Deliver(ctx, a); err != nil {
			slog.Error("alerts: delivery failed",
				"sink", s.Name(),
				"rule", a.RuleName,
				"err", err,
			)
			continue
		}
		slog.Debug("alerts: delivered",
			"sink", s.Name(),
			"rule", a.RuleName,
			"state", a.State,
		)
	}
}
