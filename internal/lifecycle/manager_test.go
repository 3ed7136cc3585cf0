package lifecycle_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ytmusicdl/internal/lifecycle"
	"ytmusicdl/internal/protocol"
	"ytmusicdl/internal/registry"
	"ytmusicdl/internal/scheduler"
	"ytmusicdl/internal/testsupport"
)

const abnormalClose protocol.CloseCode = 1006

func newManager(t *testing.T, opts lifecycle.Options) (*lifecycle.Manager, *scheduler.Scheduler) {
	t.Helper()
	if opts.MaxClients == 0 {
		opts.MaxClients = 10
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = t.TempDir()
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	sched := scheduler.New(registry.New(), nil, nil, scheduler.Options{})
	mgr := lifecycle.New(sched, nil, nil, opts)
	t.Cleanup(mgr.Close)
	return mgr, sched
}

func sessionExists(sched *scheduler.Scheduler, id string) bool {
	exists := false
	sched.Registry().View(func(tx *registry.Tx) { exists = tx.Session(id) != nil })
	return exists
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAdmitSendsWelcome(t *testing.T) {
	mgr, _ := newManager(t, lifecycle.Options{Config: protocol.ServerConfig{MaxClients: 10, MaxAudioLength: 900}})
	conn := testsupport.NewConn()
	id, restored, err := mgr.Admit("", conn)
	if err != nil || restored || id == "" {
		t.Fatalf("Admit = %q %v %v", id, restored, err)
	}
	ids := conn.IDs()
	if len(ids) != 2 || ids[0] != protocol.IDWelcome || ids[1] != protocol.IDDownloaderList {
		t.Fatalf("unexpected greeting %v", ids)
	}
	welcome := conn.Packets()[0].(protocol.Welcome)
	if welcome.SessionID != id || welcome.Config.MaxAudioLength != 900 {
		t.Fatalf("unexpected welcome %+v", welcome)
	}
}

func TestAdmitEnforcesCapacity(t *testing.T) {
	mgr, _ := newManager(t, lifecycle.Options{MaxClients: 1})
	if _, _, err := mgr.Admit("", testsupport.NewConn()); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if mgr.CanAdmit("") {
		t.Fatal("CanAdmit should report full")
	}
	if _, _, err := mgr.Admit("", testsupport.NewConn()); !errors.Is(err, lifecycle.ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
}

func TestRecoveryWithinWindow(t *testing.T) {
	mgr, sched := newManager(t, lifecycle.Options{RecoveryWindow: time.Minute})
	first := testsupport.NewConn()
	id, _, err := mgr.Admit("", first)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	jobID, err := sched.Submit(id, protocol.JobRequest{VideoMetadata: protocol.VideoMetadata{VideoID: "aaaaaaaaaaa"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	mgr.Closed(id, first, abnormalClose)
	sched.Registry().View(func(tx *registry.Tx) {
		session := tx.Session(id)
		if session == nil || session.State != registry.StateRecoverable || session.Conn != nil {
			t.Fatalf("unexpected session after close %+v", session)
		}
		if !tx.Job(jobID).Paused {
			t.Fatal("queued job should be paused while recoverable")
		}
		if !tx.HasTimer(id) {
			t.Fatal("recovery timer should be armed")
		}
	})

	worker := testsupport.NewConn()
	sched.AddWorker(&registry.Worker{ID: "w1", ContactURL: "http://w1", Conn: worker})
	if len(worker.Find(protocol.IDDownloadStart)) != 0 {
		t.Fatal("paused job must not be assigned")
	}

	second := testsupport.NewConn()
	recoveredID, restored, err := mgr.Admit(id, second)
	if err != nil || !restored || recoveredID != id {
		t.Fatalf("recovery Admit = %q %v %v", recoveredID, restored, err)
	}
	ids := second.IDs()
	if len(ids) < 3 || ids[0] != protocol.IDWelcome || ids[2] != protocol.IDRecoveredJobList {
		t.Fatalf("unexpected recovery greeting %v", ids)
	}
	list := second.Find(protocol.IDRecoveredJobList)[0].(protocol.RecoveredJobList)
	if len(list.Jobs) != 1 || list.Jobs[0].JobID != jobID || list.Jobs[0].Paused {
		t.Fatalf("unexpected recovered jobs %+v", list.Jobs)
	}
	if len(worker.Find(protocol.IDDownloadStart)) != 1 {
		t.Fatal("recovered job should be assigned")
	}
	second.WaitFor(t, protocol.IDJobDownloadPending, time.Second)

	mgr.Closed(id, first, abnormalClose)
	sched.Registry().View(func(tx *registry.Tx) {
		if tx.Session(id).State != registry.StateActive {
			t.Fatal("stale close must not affect the recovered session")
		}
	})
}

func TestRecoveryAfterWindowMintsNewSession(t *testing.T) {
	mgr, sched := newManager(t, lifecycle.Options{RecoveryWindow: 20 * time.Millisecond})
	conn := testsupport.NewConn()
	id, _, err := mgr.Admit("", conn)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if _, err := sched.Submit(id, protocol.JobRequest{VideoMetadata: protocol.VideoMetadata{VideoID: "aaaaaaaaaaa"}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	testsupport.WriteFile(t, filepath.Join(mgr.SessionDir(id), "Artist", "song.mp3"), 16)

	mgr.Closed(id, conn, abnormalClose)
	waitUntil(t, 2*time.Second, func() bool { return !sessionExists(sched, id) })

	if _, err := os.Stat(mgr.SessionDir(id)); !os.IsNotExist(err) {
		t.Fatalf("session dir should be deleted, stat err=%v", err)
	}
	sched.Registry().View(func(tx *registry.Tx) {
		if tx.JobCount() != 0 || tx.QueueLen() != 0 {
			t.Fatal("expired session jobs should be gone")
		}
	})

	newID, restored, err := mgr.Admit(id, testsupport.NewConn())
	if err != nil || restored || newID == id {
		t.Fatalf("expected a fresh session, got %q restored=%v err=%v", newID, restored, err)
	}
}

func TestTerminalCloseDeletesAfterRetention(t *testing.T) {
	mgr, sched := newManager(t, lifecycle.Options{RecoveryWindow: time.Minute, RetentionWindow: 20 * time.Millisecond})
	conn := testsupport.NewConn()
	id, _, err := mgr.Admit("", conn)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	testsupport.WriteFile(t, mgr.ArchivePath(id), 16)
	sched.Registry().Update(func(tx *registry.Tx) {
		tx.Session(id).Packaging = registry.PackagingDone
	})

	mgr.Closed(id, conn, protocol.CloseDefault)
	sched.Registry().View(func(tx *registry.Tx) {
		if tx.HasTimer(id) {
			t.Fatal("terminal close must not arm a recovery timer")
		}
	})
	waitUntil(t, 2*time.Second, func() bool { return !sessionExists(sched, id) })
	if _, err := os.Stat(mgr.ArchivePath(id)); !os.IsNotExist(err) {
		t.Fatalf("archive should be deleted, stat err=%v", err)
	}
}

func TestCleanupWaitsForInFlightJobs(t *testing.T) {
	mgr, sched := newManager(t, lifecycle.Options{RecoveryWindow: time.Minute})
	conn := testsupport.NewConn()
	id, _, err := mgr.Admit("", conn)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	sched.AddWorker(&registry.Worker{ID: "w1", ContactURL: "http://w1", Conn: testsupport.NewConn()})
	jobID, err := sched.Submit(id, protocol.JobRequest{VideoMetadata: protocol.VideoMetadata{VideoID: "aaaaaaaaaaa"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	mgr.Closed(id, conn, protocol.CloseDownloadFinished)
	time.Sleep(50 * time.Millisecond)
	if !sessionExists(sched, id) {
		t.Fatal("cleanup must wait for the in-flight job")
	}

	delivery, ok := sched.BeginFinish("w1", jobID)
	if !ok {
		t.Fatal("expected delivery")
	}
	sched.Complete(delivery, "")
	waitUntil(t, 2*time.Second, func() bool { return !sessionExists(sched, id) })
}
