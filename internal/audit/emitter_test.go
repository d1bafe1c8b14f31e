package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/datatypes"

	"council/internal/config"
	"council/internal/models"
)

type stubPoster struct {
	mu       sync.Mutex
	events   []Event
	failures int
}

func (p *stubPoster) Post(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("graph store unavailable")
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *stubPoster) delivered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func enabledConfig(queue int) config.AuditConfig {
	return config.AuditConfig{Enabled: true, QueueSize: queue, MaxRetries: 3, Backoff: time.Millisecond}
}

func TestEmitterDeliversQueued(t *testing.T) {
	p := &stubPoster{}
	e := NewEmitter(p, nil, enabledConfig(8))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	if !e.Enqueue(Event{Nodes: []Node{{Kind: NodeDecision, Key: "decision:1"}}}) {
		t.Fatalf("enqueue rejected")
	}
	deadline := time.Now().Add(2 * time.Second)
	for p.delivered() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if p.delivered() != 1 {
		t.Fatalf("delivered %d events, want 1", p.delivered())
	}
}

func TestEmitterRetriesThenDelivers(t *testing.T) {
	p := &stubPoster{failures: 2}
	e := NewEmitter(p, nil, enabledConfig(8))
	e.deliver(context.Background(), Event{Nodes: []Node{{Kind: NodeDecision, Key: "decision:1"}}})
	if p.delivered() != 1 {
		t.Fatalf("delivered %d, want success on third attempt", p.delivered())
	}
}

func TestEmitterDropsAfterRetryBudget(t *testing.T) {
	p := &stubPoster{failures: 10}
	e := NewEmitter(p, nil, enabledConfig(8))
	e.deliver(context.Background(), Event{Nodes: []Node{{Kind: NodeDecision, Key: "decision:1"}}})
	if p.delivered() != 0 {
		t.Fatalf("event delivered despite exhausted retries")
	}
}

func TestEmitterFullQueueDrops(t *testing.T) {
	p := &stubPoster{}
	e := NewEmitter(p, nil, enabledConfig(1))
	if !e.Enqueue(Event{}) {
		t.Fatalf("first enqueue rejected")
	}
	if e.Enqueue(Event{}) {
		t.Fatalf("second enqueue accepted past queue capacity")
	}
}

func TestEmitterDisabled(t *testing.T) {
	e := NewEmitter(&stubPoster{}, nil, config.AuditConfig{Enabled: false, QueueSize: 8})
	if e.Enqueue(Event{}) {
		t.Fatalf("disabled emitter accepted an event")
	}
}

func TestAssertionGraphEdges(t *testing.T) {
	why := datatypes.JSON([]byte(`[{"memory_id":"m1","weight":0.7}]`))
	ev := AssertionGraph([]models.Assertion{
		{ID: 5, ExpertID: "e1", GameID: "g1", Category: "overtime", PredType: models.PredTypeBinary, Why: why},
	})
	if len(ev.Nodes) != 1 || ev.Nodes[0].Key != "assertion:5" {
		t.Fatalf("nodes = %+v", ev.Nodes)
	}
	if len(ev.Edges) != 1 || ev.Edges[0].Kind != EdgeUsedIn || ev.Edges[0].FromKey != "memory:m1" {
		t.Fatalf("edges = %+v", ev.Edges)
	}
}

func TestOutcomeGraphEdges(t *testing.T) {
	correct := true
	ev := OutcomeGraph([]models.Outcome{
		{ID: 9, AssertionID: 5, ExpertID: "e1", GameID: "g1", Category: "overtime", IsCorrect: &correct, Grade: 1},
	})
	if len(ev.Nodes) != 1 || ev.Nodes[0].Kind != NodeDecision {
		t.Fatalf("nodes = %+v", ev.Nodes)
	}
	if len(ev.Edges) != 2 {
		t.Fatalf("edges = %+v", ev.Edges)
	}
	if ev.Edges[0].Kind != EdgeEvaluatedAs || ev.Edges[0].FromKey != "assertion:5" {
		t.Fatalf("evaluated edge = %+v", ev.Edges[0])
	}
	if ev.Edges[1].Kind != EdgeLearnedFrom || ev.Edges[1].ToKey != "expert:e1" {
		t.Fatalf("learned edge = %+v", ev.Edges[1])
	}
}
