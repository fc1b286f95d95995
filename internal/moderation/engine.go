// Package moderation implements the conversation moderation engine: it
// batches channel messages into windows, submits closed windows to an
// external classifier, reconciles the verdict against the moderated-message
// ledger, applies score deltas, and raises threshold alerts.
package moderation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sentinel/mod-bot/internal/conversation"
	"github.com/sentinel/mod-bot/internal/metrics"
)

// Channel replies for the dispatch outcomes that carry no verdict.
const (
	ReplyNothingToModerate = "No new messages to moderate."
	ReplyNoHarmfulContent  = "No harmful content detected in the new messages."
)

// Store is the persistence contract the engine needs: user scores and the
// moderated-message de-duplication ledger. Updates must be atomic single
// round trips so overlapping cycles across channels can touch the same user.
type Store interface {
	// UpsertUserScore adds delta to the user's score, inserting the row on
	// first sight and overwriting the display name last-writer-wins. It
	// reports the new score and whether it sits at or below the alert
	// threshold.
	UpsertUserScore(ctx context.Context, userID, displayName string, delta int) (newScore int, crossedThreshold bool, err error)

	// IsMessageModerated reports whether the message is already in the ledger.
	IsMessageModerated(ctx context.Context, messageID, channelID string) (bool, error)

	// MarkMessageModerated records the message in the ledger. Marking an
	// already-marked message is a no-op, not an error.
	MarkMessageModerated(ctx context.Context, messageID, channelID string) error
}

// Classifier assesses an ordered batch of messages and returns a verdict.
// The engine treats any error as a classifier outage and substitutes the
// neutral verdict.
type Classifier interface {
	Assess(ctx context.Context, batch []conversation.Message) (*Verdict, error)
}

// Notifier posts a text message to a channel on the chat platform.
type Notifier interface {
	PostChannel(ctx context.Context, channelID, text string) error
}

// Throttle is the per-user alert gate. MaybeAlert either sends a moderator
// alert and reports fired=true, or suppresses it inside the cooldown window.
type Throttle interface {
	MaybeAlert(ctx context.Context, userID, displayName string, score int) (fired bool, err error)
}

// Config holds the engine's tunables.
type Config struct {
	// CommandPrefix marks command invocations; prefixed messages are never
	// sent to the classifier nor scored.
	CommandPrefix string

	// WindowDelay is the inactivity period before an idle window is
	// dispatched automatically.
	WindowDelay time.Duration

	// DispatchTimeout bounds a timer-fired dispatch cycle.
	DispatchTimeout time.Duration
}

// DefaultConfig returns the stock engine settings.
func DefaultConfig() Config {
	return Config{
		CommandPrefix:   "!",
		WindowDelay:     conversation.DefaultWindowDelay,
		DispatchTimeout: 60 * time.Second,
	}
}

// Engine is the moderation dispatcher. A channel is idle when it has no
// window; recording a message opens the window and arms the debounce timer,
// and a dispatch cycle (timer fire or manual trigger) closes it again
// regardless of the verdict outcome.
type Engine struct {
	registry   *conversation.Registry
	scheduler  *conversation.Scheduler
	store      Store
	classifier Classifier
	notifier   Notifier
	throttle   Throttle
	audit      *AuditLog

	prefix          string
	dispatchTimeout time.Duration
}

// NewEngine wires a dispatcher from its collaborators.
func NewEngine(store Store, classifier Classifier, notifier Notifier, throttle Throttle, audit *AuditLog, cfg Config) *Engine {
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultConfig().DispatchTimeout
	}
	return &Engine{
		registry:        conversation.NewRegistry(),
		scheduler:       conversation.NewScheduler(cfg.WindowDelay),
		store:           store,
		classifier:      classifier,
		notifier:        notifier,
		throttle:        throttle,
		audit:           audit,
		prefix:          cfg.CommandPrefix,
		dispatchTimeout: cfg.DispatchTimeout,
	}
}

// OnMessage is the ingestion entry point. It records the message into the
// channel's window and restarts the debounce timer. Append and timer reset
// happen with no store or network call in between, so messages arriving
// back to back land in arrival order with no dispatch interleaved.
func (e *Engine) OnMessage(channelID string, msg conversation.Message) {
	created := e.registry.Record(channelID, msg)
	if created {
		log.Printf("[moderation] started new conversation window for channel=%s", channelID)
	}
	metrics.MessagesIngested.Inc()
	metrics.ActiveWindows.Set(float64(e.registry.Active()))

	e.scheduler.Reset(channelID, func() { e.onTimerFire(channelID) })
}

// TriggerDispatch runs a moderation cycle for the channel right now, as for
// an explicit moderation command. It cancels the pending debounce timer so
// the same window cannot be dispatched twice, and returns the channel-facing
// summary.
func (e *Engine) TriggerDispatch(ctx context.Context, channelID string) (string, error) {
	e.scheduler.Cancel(channelID)
	return e.dispatch(ctx, channelID, "manual")
}

// HasWindow reports whether the channel currently has an open window.
func (e *Engine) HasWindow(channelID string) bool {
	return e.registry.Has(channelID)
}

// Stop cancels all pending window timers. In-flight dispatch cycles run to
// completion.
func (e *Engine) Stop() {
	e.scheduler.Stop()
}

// onTimerFire closes an idle window. Same contract as a manual trigger; both
// paths converge on dispatch.
func (e *Engine) onTimerFire(channelID string) {
	log.Printf("[moderation] inactivity delay elapsed for channel=%s, dispatching", channelID)

	ctx, cancel := context.WithTimeout(context.Background(), e.dispatchTimeout)
	defer cancel()

	if _, err := e.dispatch(ctx, channelID, "timer"); err != nil {
		log.Printf("[moderation] timer dispatch failed for channel=%s: %v", channelID, err)
	}
}

// dispatch runs one complete moderation cycle for a channel: drain the
// window, classify the batch, reconcile against the ledger, apply score
// deltas, raise alerts, audit, and report a summary to the channel.
//
// The drain is atomic, so when a manual trigger races a timer fire only one
// cycle sees the batch; the other drains empty and exits early.
func (e *Engine) dispatch(ctx context.Context, channelID, trigger string) (string, error) {
	drained := e.registry.Drain(channelID)
	metrics.ActiveWindows.Set(float64(e.registry.Active()))

	batch := make([]conversation.Message, 0, len(drained))
	for _, m := range drained {
		if e.prefix != "" && strings.HasPrefix(m.Text, e.prefix) {
			continue
		}
		batch = append(batch, m)
	}

	if len(batch) == 0 {
		metrics.DispatchCycles.WithLabelValues(trigger).Inc()
		e.post(ctx, channelID, ReplyNothingToModerate)
		return ReplyNothingToModerate, nil
	}

	start := time.Now()
	verdict, err := e.classifier.Assess(ctx, batch)
	metrics.ClassifierLatency.Observe(time.Since(start).Seconds())
	if err != nil || verdict == nil {
		// A classifier outage must not crash channel processing or leave
		// the window stuck: substitute the neutral verdict and finish the
		// cycle without scoring or marking anything.
		log.Printf("[moderation] classifier failed for channel=%s: %v", channelID, err)
		metrics.ClassifierFailures.Inc()
		metrics.DispatchCycles.WithLabelValues(trigger).Inc()
		e.post(ctx, channelID, ReplyNoHarmfulContent)
		return ReplyNoHarmfulContent, nil
	}
	verdict.normalize()

	type crossing struct {
		userID      string
		displayName string
		score       int
	}
	var crossings []crossing

	for i, m := range batch {
		done, err := e.store.IsMessageModerated(ctx, m.MessageID, channelID)
		if err != nil {
			return e.abort(ctx, channelID, batch[i:], fmt.Errorf("moderation: ledger lookup: %w", err))
		}
		if done {
			// Already scored by an overlapping cycle; skip.
			continue
		}

		delta := verdict.Delta(m.AuthorName)
		newScore, crossed, err := e.store.UpsertUserScore(ctx, m.AuthorID, m.AuthorName, delta)
		if err != nil {
			return e.abort(ctx, channelID, batch[i:], fmt.Errorf("moderation: score update: %w", err))
		}
		if err := e.store.MarkMessageModerated(ctx, m.MessageID, channelID); err != nil {
			return e.abort(ctx, channelID, batch[i:], fmt.Errorf("moderation: ledger mark: %w", err))
		}
		metrics.MessagesModerated.Inc()

		if crossed {
			crossings = append(crossings, crossing{m.AuthorID, m.AuthorName, newScore})
		}
	}

	// One alert candidate per user per cycle, carrying the final score.
	latest := make(map[string]int)
	var order []crossing
	for _, c := range crossings {
		if _, seen := latest[c.userID]; !seen {
			order = append(order, c)
		}
		latest[c.userID] = c.score
	}
	for _, c := range order {
		fired, err := e.throttle.MaybeAlert(ctx, c.userID, c.displayName, latest[c.userID])
		if err != nil {
			// Alert delivery is best effort; a throttle-store outage must
			// not abort the cycle.
			log.Printf("[moderation] alert throttle error for user=%s: %v", c.userID, err)
			metrics.Alerts.WithLabelValues("suppressed").Inc()
			continue
		}
		if fired {
			metrics.Alerts.WithLabelValues("fired").Inc()
		} else {
			metrics.Alerts.WithLabelValues("suppressed").Inc()
		}
	}

	if err := e.audit.Record(channelID, verdict); err != nil {
		log.Printf("[moderation] audit write failed for channel=%s: %v", channelID, err)
	}

	summary := fmt.Sprintf("Moderation completed for %d new messages. Harmfulness level: %s. Reasons: %s",
		len(batch), verdict.HarmfulnessLevel, strings.Join(verdict.Reasons, ", "))
	metrics.DispatchCycles.WithLabelValues(trigger).Inc()
	e.post(ctx, channelID, summary)
	return summary, nil
}

// abort handles a fatal store failure mid-cycle: the remaining unprocessed
// messages go back to the front of the window so a later cycle retries them,
// and the channel sees only the generic reply.
func (e *Engine) abort(ctx context.Context, channelID string, remaining []conversation.Message, err error) (string, error) {
	e.registry.Requeue(channelID, remaining)
	metrics.ActiveWindows.Set(float64(e.registry.Active()))
	log.Printf("[moderation] dispatch aborted for channel=%s, %d messages re-queued: %v", channelID, len(remaining), err)
	e.post(ctx, channelID, ReplyNoHarmfulContent)
	return ReplyNoHarmfulContent, err
}

func (e *Engine) post(ctx context.Context, channelID, text string) {
	if err := e.notifier.PostChannel(ctx, channelID, text); err != nil {
		log.Printf("[moderation] post to channel=%s failed: %v", channelID, err)
	}
}
