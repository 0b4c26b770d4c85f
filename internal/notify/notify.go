package notify

import (
	"context"
	"time"

	"codeberg.org/d-buckner/notifyicon/internal/rulesync"
)

// Signal kinds.
const (
	KindRulesChanged      = "rules-changed"
	KindPromptUnsupported = "prompt-unsupported"
	KindPromptWithdraw    = "prompt-withdraw"
	KindSyncCompleted     = "sync-completed"
	KindIconDecision      = "icon-decision"
)

// Signal is the wire form of an outbound event.
type Signal struct {
	Kind    string    `json:"kind"`
	Package string    `json:"package,omitempty"`
	Result  string    `json:"result,omitempty"`
	Error   string    `json:"error,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier receives the engine's outbound signals. Implementations must not
// block for long; they are called from the engine's worker.
type Notifier interface {
	RulesChanged(ctx context.Context)
	PromptUnsupported(ctx context.Context, pkg string)
	WithdrawPrompt(ctx context.Context, pkg string)
	SyncCompleted(ctx context.Context, result rulesync.Result, err error)
}

// Publisher delivers a prepared signal.
type Publisher interface {
	Publish(ctx context.Context, sig Signal)
}

// signaler adapts a Publisher to the Notifier interface.
type signaler struct {
	pub Publisher
	now func() time.Time
}

func (s signaler) RulesChanged(ctx context.Context) {
	s.pub.Publish(ctx, Signal{Kind: KindRulesChanged, At: s.now()})
}

func (s signaler) PromptUnsupported(ctx context.Context, pkg string) {
	s.pub.Publish(ctx, Signal{Kind: KindPromptUnsupported, Package: pkg, At: s.now()})
}

func (s signaler) WithdrawPrompt(ctx context.Context, pkg string) {
	s.pub.Publish(ctx, Signal{Kind: KindPromptWithdraw, Package: pkg, At: s.now()})
}

func (s signaler) SyncCompleted(ctx context.Context, result rulesync.Result, err error) {
	sig := Signal{Kind: KindSyncCompleted, Result: result.String(), At: s.now()}
	if err != nil {
		sig.Result = "failed"
		sig.Error = err.Error()
		if kind, ok := rulesync.KindOf(err); ok {
			sig.Result = kind.String()
		}
	}
	s.pub.Publish(ctx, sig)
}

// Multi fans each signal out to several notifiers in order.
type Multi []Notifier

func (m Multi) RulesChanged(ctx context.Context) {
	for _, n := range m {
		n.RulesChanged(ctx)
	}
}

func (m Multi) PromptUnsupported(ctx context.Context, pkg string) {
	for _, n := range m {
		n.PromptUnsupported(ctx, pkg)
	}
}

func (m Multi) WithdrawPrompt(ctx context.Context, pkg string) {
	for _, n := range m {
		n.WithdrawPrompt(ctx, pkg)
	}
}

func (m Multi) SyncCompleted(ctx context.Context, result rulesync.Result, err error) {
	for _, n := range m {
		n.SyncCompleted(ctx, result, err)
	}
}
