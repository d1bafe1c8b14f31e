package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"council/internal/config"
	"council/internal/models"
)

// Poster is the transport behind the emitter. Satisfied by *Client.
type Poster interface {
	Post(ctx context.Context, ev Event) error
}

// Emitter is the write-behind queue in front of the provenance graph.
// Enqueue never blocks: when the buffer is full the event is dropped with a
// warning, and a failed post is retried with backoff before being dropped
// the same way.
type Emitter struct {
	poster Poster
	logger *zap.Logger
	cfg    config.AuditConfig

	queue chan Event
}

func NewEmitter(poster Poster, logger *zap.Logger, cfg config.AuditConfig) *Emitter {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1024
	}
	return &Emitter{
		poster: poster,
		logger: logger,
		cfg:    cfg,
		queue:  make(chan Event, size),
	}
}

// Enqueue hands an event to the background worker. Returns false when the
// event was dropped.
func (e *Emitter) Enqueue(ev Event) bool {
	if e == nil || !e.cfg.Enabled {
		return false
	}
	select {
	case e.queue <- ev:
		return true
	default:
		if e.logger != nil {
			e.logger.Warn("audit queue full, dropping event",
				zap.Int("nodes", len(ev.Nodes)),
				zap.Int("edges", len(ev.Edges)))
		}
		return false
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is already
// buffered.
func (e *Emitter) Run(ctx context.Context) {
	if e == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			e.drain()
			return
		case ev := <-e.queue:
			e.deliver(ctx, ev)
		}
	}
}

func (e *Emitter) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-e.queue:
			e.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (e *Emitter) deliver(ctx context.Context, ev Event) {
	attempts := e.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	backoff := e.cfg.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff * time.Duration(attempt)):
			}
		}
		if lastErr = e.poster.Post(ctx, ev); lastErr == nil {
			return
		}
	}
	if e.logger != nil {
		e.logger.Warn("audit event dropped after retries",
			zap.Int("attempts", attempts),
			zap.Error(lastErr))
	}
}

// AssertionGraph builds the submission-time event: one Assertion node per
// row plus USED_IN edges from each cited memory factor.
func AssertionGraph(assertions []models.Assertion) Event {
	var ev Event
	for _, as := range assertions {
		key := assertionKey(as.ID)
		ev.Nodes = append(ev.Nodes, Node{
			Kind: NodeAssertion,
			Key:  key,
			Properties: map[string]any{
				"expert_id": as.ExpertID,
				"game_id":   as.GameID,
				"category":  as.Category,
				"pred_type": as.PredType,
			},
		})
		for _, f := range decodeWhy(as) {
			ev.Edges = append(ev.Edges, Edge{
				Kind:    EdgeUsedIn,
				FromKey: "memory:" + f.MemoryID,
				ToKey:   key,
				Properties: map[string]any{
					"weight": f.Weight,
				},
			})
		}
	}
	return ev
}

// OutcomeGraph builds the grading-time event: a Decision node per outcome
// with EVALUATED_AS and LEARNED_FROM edges back to the assertion.
func OutcomeGraph(outcomes []models.Outcome) Event {
	var ev Event
	for _, out := range outcomes {
		key := fmt.Sprintf("decision:%d", out.ID)
		props := map[string]any{
			"expert_id": out.ExpertID,
			"game_id":   out.GameID,
			"category":  out.Category,
			"grade":     out.Grade,
		}
		if out.IsCorrect != nil {
			props["is_correct"] = *out.IsCorrect
		}
		ev.Nodes = append(ev.Nodes, Node{Kind: NodeDecision, Key: key, Properties: props})
		ev.Edges = append(ev.Edges,
			Edge{Kind: EdgeEvaluatedAs, FromKey: assertionKey(out.AssertionID), ToKey: key},
			Edge{Kind: EdgeLearnedFrom, FromKey: key, ToKey: "expert:" + out.ExpertID},
		)
	}
	return ev
}

func assertionKey(id uint64) string {
	return fmt.Sprintf("assertion:%d", id)
}

func decodeWhy(as models.Assertion) []models.WhyFactor {
	if len(as.Why) == 0 {
		return nil
	}
	var parsed []models.WhyFactor
	if err := json.Unmarshal(as.Why, &parsed); err != nil {
		return nil
	}
	return parsed
}
