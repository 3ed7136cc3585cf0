package registry_test

import (
	"sync/atomic"
	"testing"
	"time"

	"ytmusicdl/internal/protocol"
	"ytmusicdl/internal/registry"
)

func putJob(tx *registry.Tx, id, session string) *registry.Job {
	job := &registry.Job{ID: id, SessionID: session, CreatedAt: time.Now()}
	tx.PutJob(job)
	return job
}

func TestQueueOperationsKeepPositions(t *testing.T) {
	reg := registry.New()
	reg.Update(func(tx *registry.Tx) {
		tx.PutSession(&registry.Session{ID: "s1"})
		for _, id := range []string{"a", "b", "c"} {
			putJob(tx, id, "s1")
			tx.Enqueue(id)
		}
		if got := tx.Queue(); len(got) != 3 || got[0] != "a" || got[2] != "c" {
			t.Fatalf("unexpected queue %v", got)
		}
		if err := tx.CheckInvariants(); err != nil {
			t.Fatalf("invariants after enqueue: %v", err)
		}

		tx.RotateHead()
		if head, _ := tx.QueueHead(); head != "b" {
			t.Fatalf("expected b at head after rotate, got %q", head)
		}
		if !tx.RemoveFromQueue("c") {
			t.Fatal("expected c to be removed")
		}
		if tx.RemoveFromQueue("c") {
			t.Fatal("second removal should report false")
		}
		tx.EnqueueFront("c")
		if got := tx.Queue(); got[0] != "c" || tx.QueueLen() != 3 {
			t.Fatalf("unexpected queue after EnqueueFront %v", got)
		}
	})
}

func TestWorkersKeepConnectionOrder(t *testing.T) {
	reg := registry.New()
	reg.Update(func(tx *registry.Tx) {
		tx.PutWorker(&registry.Worker{ID: "w2"})
		tx.PutWorker(&registry.Worker{ID: "w1", CurrentDownload: "job"})
		tx.PutWorker(&registry.Worker{ID: "w3", Rejecting: true})
		tx.PutWorker(&registry.Worker{ID: "w2"})

		workers := tx.Workers()
		if len(workers) != 3 || workers[0].ID != "w2" || workers[1].ID != "w1" {
			t.Fatalf("unexpected order %v", workers)
		}
		idle := tx.IdleWorkers()
		if len(idle) != 1 || idle[0].ID != "w2" {
			t.Fatalf("expected only w2 idle, got %v", idle)
		}
		tx.DeleteWorker("w2")
		tx.DeleteWorker("missing")
		if tx.Worker("w2") != nil || len(tx.Workers()) != 2 {
			t.Fatal("expected w2 to be gone")
		}
	})
}

func TestMissingLookupsReturnNil(t *testing.T) {
	reg := registry.New()
	reg.View(func(tx *registry.Tx) {
		if tx.Session("nope") != nil || tx.Job("nope") != nil || tx.Worker("nope") != nil {
			t.Fatal("expected nil for unknown ids")
		}
		if tx.SessionJobs("nope") != nil {
			t.Fatal("expected no jobs for unknown session")
		}
		if _, ok := tx.PopHead(); ok {
			t.Fatal("expected empty queue")
		}
	})
}

func TestCheckInvariantsDetectsBrokenAssignment(t *testing.T) {
	reg := registry.New()
	reg.Update(func(tx *registry.Tx) {
		job := putJob(tx, "j", "s")
		job.AssignedWorker = "w"
		tx.PutWorker(&registry.Worker{ID: "w"})
		if err := tx.CheckInvariants(); err == nil {
			t.Fatal("expected invariant violation for one-sided assignment")
		}
		tx.Worker("w").CurrentDownload = "j"
		if err := tx.CheckInvariants(); err != nil {
			t.Fatalf("unexpected violation: %v", err)
		}
		pos := 0
		job.QueuePosition = &pos
		if err := tx.CheckInvariants(); err == nil {
			t.Fatal("expected violation for assigned job with a position")
		}
	})
}

func TestTimerFiresOnce(t *testing.T) {
	reg := registry.New()
	var fired atomic.Int32
	done := make(chan struct{})
	reg.Update(func(tx *registry.Tx) {
		tx.ArmTimer("s", 10*time.Millisecond, func() {
			fired.Add(1)
			close(done)
		})
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	reg.Update(func(tx *registry.Tx) {
		if tx.ClaimTimer("s") {
			t.Fatal("claim after fire must fail")
		}
	})
	if fired.Load() != 1 {
		t.Fatalf("expected one fire, got %d", fired.Load())
	}
}

func TestClaimedTimerNeverFires(t *testing.T) {
	reg := registry.New()
	var fired atomic.Bool
	reg.Update(func(tx *registry.Tx) {
		tx.ArmTimer("s", 20*time.Millisecond, func() { fired.Store(true) })
		if !tx.HasTimer("s") {
			t.Fatal("expected timer to be armed")
		}
		if !tx.ClaimTimer("s") {
			t.Fatal("expected claim to succeed")
		}
	})
	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Fatal("claimed timer fired")
	}
}

func TestRearmReplacesTimer(t *testing.T) {
	reg := registry.New()
	var first, second atomic.Bool
	reg.Update(func(tx *registry.Tx) {
		tx.ArmTimer("s", 10*time.Millisecond, func() { first.Store(true) })
		tx.ArmTimer("s", 30*time.Millisecond, func() { second.Store(true) })
	})
	time.Sleep(100 * time.Millisecond)
	if first.Load() || !second.Load() {
		t.Fatalf("expected only the second timer to fire: first=%v second=%v", first.Load(), second.Load())
	}
}

type recordingConn struct {
	sent []protocol.Packet
}

func (c *recordingConn) Send(p protocol.Packet) {
	c.sent = append(c.sent, p)
}

func (c *recordingConn) Close(protocol.CloseCode, string) {}

func TestSessionSendAndJobView(t *testing.T) {
	var detached *registry.Session
	detached.Send(protocol.Ping{})

	conn := &recordingConn{}
	session := &registry.Session{ID: "s", Conn: conn, Jobs: []string{"a", "b"}}
	session.Send(protocol.Ping{})
	if len(conn.sent) != 1 {
		t.Fatalf("expected one packet, got %d", len(conn.sent))
	}
	if !session.RemoveJob("a") || session.RemoveJob("a") || len(session.Jobs) != 1 {
		t.Fatalf("unexpected job list %v", session.Jobs)
	}

	job := &registry.Job{ID: "j", SessionID: "s", AssignedWorker: "w"}
	view := job.View()
	if view.AssignedDownloader == nil || *view.AssignedDownloader != "w" || view.QueuePosition != nil {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestWorkerName(t *testing.T) {
	tests := map[string]string{
		"https://worker-1.onrender.com": "worker-1",
		"http://127.0.0.1:8081":         "127",
		"http://localhost:8081":         "localhost",
	}
	for contact, want := range tests {
		w := &registry.Worker{ContactURL: contact}
		if got := w.Name(); got != want {
			t.Fatalf("Name(%q) = %q, want %q", contact, got, want)
		}
	}
}
