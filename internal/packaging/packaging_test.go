package packaging_test

import (
	"archive/zip"
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"ytmusicdl/internal/packaging"
	"ytmusicdl/internal/protocol"
	"ytmusicdl/internal/registry"
	"ytmusicdl/internal/testsupport"
)

type dirs struct {
	root    string
	archive string
}

func (d dirs) SessionDir(id string) string {
	return filepath.Join(d.root, id)
}

func (d dirs) ArchivePath(id string) string {
	if d.archive != "" {
		return d.archive
	}
	return filepath.Join(d.root, id+".zip")
}

func newSession(t *testing.T, reg *registry.Registry, id string) *testsupport.Conn {
	t.Helper()
	conn := testsupport.NewConn()
	reg.Update(func(tx *registry.Tx) {
		tx.PutSession(&registry.Session{
			ID:        id,
			Settings:  protocol.DefaultSettings(),
			Packaging: registry.PackagingNone,
			Conn:      conn,
			CreatedAt: time.Now(),
		})
	})
	return conn
}

func addJob(reg *registry.Registry, sessionID, jobID string, finished bool) {
	reg.Update(func(tx *registry.Tx) {
		tx.PutJob(&registry.Job{ID: jobID, SessionID: sessionID, Finished: finished})
		session := tx.Session(sessionID)
		session.Jobs = append(session.Jobs, jobID)
	})
}

func packagingStatus(reg *registry.Registry, id string) registry.PackagingStatus {
	var status registry.PackagingStatus
	reg.View(func(tx *registry.Tx) { status = tx.Session(id).Packaging })
	return status
}

func TestArchiveStoresRelativeEntries(t *testing.T) {
	src := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(src, "Artist", "Album", "01 - Song.mp3"), 128)
	testsupport.WriteFile(t, filepath.Join(src, "Loose.mp3"), 64)
	dst := filepath.Join(t.TempDir(), "out.zip")

	count, err := packaging.Archive(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 files, got %d", count)
	}

	reader, err := zip.OpenReader(dst)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer reader.Close()
	var names []string
	for _, file := range reader.File {
		names = append(names, file.Name)
		if file.Method != zip.Store {
			t.Fatalf("%s uses method %d, want store", file.Name, file.Method)
		}
	}
	slices.Sort(names)
	want := []string{"Artist/Album/01 - Song.mp3", "Loose.mp3"}
	if !slices.Equal(names, want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
}

func TestArchiveOfMissingDirIsEmpty(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "empty.zip")
	count, err := packaging.Archive(context.Background(), filepath.Join(t.TempDir(), "missing"), dst)
	if err != nil || count != 0 {
		t.Fatalf("Archive = %d, %v", count, err)
	}
	reader, err := zip.OpenReader(dst)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer reader.Close()
	if len(reader.File) != 0 {
		t.Fatalf("expected empty archive, got %d entries", len(reader.File))
	}
}

func TestPackageRejections(t *testing.T) {
	reg := registry.New()
	p := packaging.New(reg, dirs{root: t.TempDir()}, nil, nil, nil)
	t.Cleanup(p.Close)

	conn := newSession(t, reg, "s1")
	addJob(reg, "s1", "j1", false)
	if p.Package("s1", false) {
		t.Fatal("packaging must not start with unfinished jobs")
	}
	fail := conn.Find(protocol.IDPackageFail)
	if len(fail) != 1 || fail[0].(protocol.PackageFail).Reason != packaging.ReasonJobsRunning {
		t.Fatalf("unexpected packets %v", conn.IDs())
	}
	if packagingStatus(reg, "s1") != registry.PackagingNone {
		t.Fatal("status must stay none after rejection")
	}

	reg.Update(func(tx *registry.Tx) { tx.Session("s1").Packaging = registry.PackagingWorking })
	conn.Reset()
	if p.Package("s1", false) {
		t.Fatal("second request must not start")
	}
	fail = conn.Find(protocol.IDPackageFail)
	if len(fail) != 1 || fail[0].(protocol.PackageFail).Reason != packaging.ReasonAlreadyStarted {
		t.Fatalf("unexpected packets %v", conn.IDs())
	}

	if p.Package("unknown", false) {
		t.Fatal("unknown session must not start")
	}
}

func TestPackageSuccessClosesConnection(t *testing.T) {
	reg := registry.New()
	root := t.TempDir()
	p := packaging.New(reg, dirs{root: root}, nil, nil, nil)
	t.Cleanup(p.Close)

	conn := newSession(t, reg, "s1")
	addJob(reg, "s1", "j1", true)
	testsupport.WriteFile(t, filepath.Join(root, "s1", "song.mp3"), 32)

	if !p.Package("s1", false) {
		t.Fatal("expected packaging to start")
	}
	p.Wait()

	ids := conn.IDs()
	if !slices.Equal(ids, []string{protocol.IDPackageStart, protocol.IDPackageEnd}) {
		t.Fatalf("unexpected packets %v", ids)
	}
	closed, code, reason := conn.Closed()
	if !closed || code != protocol.CloseDefault || reason == "" {
		t.Fatalf("expected default close, got %v %d %q", closed, code, reason)
	}
	if packagingStatus(reg, "s1") != registry.PackagingDone {
		t.Fatal("status should be done")
	}
	if _, err := zip.OpenReader(filepath.Join(root, "s1.zip")); err != nil {
		t.Fatalf("archive missing: %v", err)
	}
}

func TestPackageFailureClosesWithPackagingFailure(t *testing.T) {
	reg := registry.New()
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	testsupport.WriteFile(t, blocker, 1)
	p := packaging.New(reg, dirs{root: root, archive: filepath.Join(blocker, "s1.zip")}, nil, nil, nil)
	t.Cleanup(p.Close)

	conn := newSession(t, reg, "s1")
	if !p.Package("s1", false) {
		t.Fatal("expected packaging to start")
	}
	p.Wait()

	fail := conn.Find(protocol.IDPackageFail)
	if len(fail) != 1 || fail[0].(protocol.PackageFail).Reason != packaging.ReasonArchiveFailed {
		t.Fatalf("unexpected packets %v", conn.IDs())
	}
	if _, code, _ := conn.Closed(); code != protocol.ClosePackagingFailure {
		t.Fatalf("expected packaging_failure close, got %d", code)
	}
	if packagingStatus(reg, "s1") != registry.PackagingWorking {
		t.Fatal("failed packaging keeps the working status")
	}
}

func TestAutomaticPackagingRespectsSettings(t *testing.T) {
	reg := registry.New()
	p := packaging.New(reg, dirs{root: t.TempDir()}, nil, nil, nil)
	t.Cleanup(p.Close)

	conn := newSession(t, reg, "s1")
	addJob(reg, "s1", "j1", true)
	if p.Package("s1", true) {
		t.Fatal("automatic packaging must wait for autoPackageOnFinish")
	}

	reg.Update(func(tx *registry.Tx) { tx.Session("s1").Settings.AutoPackageOnFinish = true })
	addJob(reg, "s1", "j2", false)
	if p.Package("s1", true) {
		t.Fatal("automatic packaging must wait for every job")
	}
	if len(conn.Packets()) != 0 {
		t.Fatalf("automatic skips must be silent, got %v", conn.IDs())
	}

	reg.Update(func(tx *registry.Tx) { tx.Job("j2").Finished = true })
	if !p.Package("s1", true) {
		t.Fatal("expected automatic packaging to start")
	}
	p.Wait()
	conn.WaitClosed(t, time.Second)
}
