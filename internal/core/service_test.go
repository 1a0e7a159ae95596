package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func csvFile(lines ...string) *strings.Reader {
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func TestPrepare_Ready(t *testing.T) {
	svc := newTestService(newFakeStore(), ServiceConfig{PreviewRows: 2})

	sess, err := svc.Prepare(context.Background(), "e1", "eleves.csv", csvFile(
		"Nom,Prénom,Classe",
		"Diallo,Awa,CE1",
		"Fall,Ami,CE2",
		"Ndiaye,Modou,CM1",
	))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if sess.State != StateReady || sess.Total != 3 || len(sess.Preview) != 2 {
		t.Errorf("session = %+v", sess)
	}
	if sess.ID == "" || sess.TenantID != "e1" || sess.FileName != "eleves.csv" {
		t.Errorf("session identity = %+v", sess)
	}

	p, err := svc.Progress("e1", sess.ID)
	if err != nil || p.Current != 0 || p.Total != 3 || p.State != StateReady {
		t.Errorf("Progress = %+v, %v", p, err)
	}
}

func TestPrepare_Blocked(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, ServiceConfig{})

	sess, err := svc.Prepare(context.Background(), "e1", "eleves.csv", csvFile(
		"Nom,Prénom,Classe",
		"Diallo,,CE1",
	))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if sess.State != StateBlocked || sess.Report.OK() {
		t.Fatalf("session = %+v", sess)
	}

	err = svc.StartImport(context.Background(), "e1", sess.ID)
	if !errors.Is(err, ErrValidationBlocked) {
		t.Errorf("StartImport = %v, want ErrValidationBlocked", err)
	}
	if _, err := svc.SubscribeProgress("e1", sess.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SubscribeProgress on blocked session = %v, want ErrInvalidState", err)
	}
	if len(store.students) != 0 || store.probes != 0 {
		t.Error("blocked session reached the store")
	}
}

func TestPrepare_FileErrors(t *testing.T) {
	svc := newTestService(newFakeStore(), ServiceConfig{})
	ctx := context.Background()

	tests := []struct {
		name    string
		file    string
		data    string
		wantErr error
	}{
		{"missing column", "e.csv", "Nom,Prénom\nDiallo,Awa\n", ErrMissingColumns},
		{"empty", "e.csv", "Nom,Prénom,Classe\n", ErrEmptyFile},
		{"xls", "e.xls", "whatever", ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := svc.Prepare(ctx, "e1", tt.file, strings.NewReader(tt.data))
			if !errors.Is(err, tt.wantErr) || sess != nil {
				t.Errorf("Prepare = (%v, %v), want %v", sess, err, tt.wantErr)
			}
			if !IsFileError(err) {
				t.Errorf("IsFileError(%v) = false", err)
			}
		})
	}

	if _, err := svc.Prepare(ctx, "", "e.csv", csvFile("Nom,Prénom,Classe", "A,B,C")); !errors.Is(err, ErrMissingTenant) {
		t.Errorf("Prepare without tenant = %v", err)
	}
}

func TestStartImport_CompletesAndReports(t *testing.T) {
	store := newFakeStore()
	store.failCreate["Ami"] = errors.New("connection reset")
	svc := newTestService(store, ServiceConfig{})
	ctx := context.Background()

	sess, err := svc.Prepare(ctx, "e1", "eleves.csv", csvFile(
		"Nom,Prénom,Classe",
		"Diallo,Awa,CE1",
		"Fall,Ami,CE2",
		"Ndiaye,Modou,CM1",
	))
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.StartImport(ctx, "e1", sess.ID); err != nil {
		t.Fatalf("StartImport: %v", err)
	}

	outcome, err := svc.Result(ctx, "e1", sess.ID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if outcome.State != StateCompleted || outcome.SuccessCount != 2 || outcome.ErrorCount != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.SessionID != sess.ID || outcome.Errors[0] != "Ligne 3: create student: connection reset" {
		t.Errorf("outcome = %+v", outcome)
	}
	if len(outcome.Students) != 2 {
		t.Errorf("refreshed students = %d, want 2", len(outcome.Students))
	}

	final, _ := svc.Session("e1", sess.ID)
	if final.State != StateCompleted {
		t.Errorf("session state = %s", final.State)
	}

	// A finished session cannot be started again.
	if err := svc.StartImport(ctx, "e1", sess.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("restart = %v, want ErrInvalidState", err)
	}

	// Subscribing after the end yields the final progress and a closed channel.
	ch, err := svc.SubscribeProgress("e1", sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := <-ch
	if !ok || p.Current != 3 || p.State != StateCompleted {
		t.Errorf("late progress = %+v (open=%v)", p, ok)
	}
	if _, open := <-ch; open {
		t.Error("channel should be closed after a terminal state")
	}
}

// blockingStore holds CreateStudent until release is closed.
type blockingStore struct {
	*fakeStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) CreateStudent(ctx context.Context, d StudentDraft) (Student, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return Student{}, ctx.Err()
	}
	return b.fakeStore.CreateStudent(ctx, d)
}

func newBlockingStore() *blockingStore {
	return &blockingStore{fakeStore: newFakeStore(), started: make(chan struct{}), release: make(chan struct{})}
}

func TestStartImport_ProgressAndOnePerTenant(t *testing.T) {
	store := newBlockingStore()
	svc := newTestService(store, ServiceConfig{})
	ctx := context.Background()

	lines := []string{"Nom,Prénom,Classe"}
	for i := 0; i < 5; i++ {
		lines = append(lines, fmt.Sprintf("Nom,Eleve%d,CE1", i))
	}
	first, err := svc.Prepare(ctx, "e1", "a.csv", csvFile(lines...))
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Prepare(ctx, "e1", "b.csv", csvFile(lines...))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.SubscribeProgress("e1", first.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SubscribeProgress before start = %v, want ErrInvalidState", err)
	}
	if err := svc.StartImport(ctx, "e1", first.ID); err != nil {
		t.Fatal(err)
	}
	<-store.started

	// The first row is held by the store, so no update has been missed.
	updates, err := svc.SubscribeProgress("e1", first.ID)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.StartImport(ctx, "e1", second.ID); !errors.Is(err, ErrImportInProgress) {
		t.Errorf("concurrent import = %v, want ErrImportInProgress", err)
	}
	if err := svc.Discard("e1", first.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Discard while importing = %v, want ErrInvalidState", err)
	}

	close(store.release)

	var last ImportProgress
	for p := range updates {
		if p.Current < last.Current {
			t.Errorf("progress went backwards: %d after %d", p.Current, last.Current)
		}
		last = p
	}
	if last.State != StateCompleted || last.Current != 5 || last.Successes != 5 {
		t.Errorf("last progress = %+v", last)
	}

	// The tenant slot is free again once the run has drained.
	if err := svc.WaitForImports(ctx); err != nil {
		t.Fatal(err)
	}
	if err := svc.StartImport(ctx, "e1", second.ID); err != nil {
		t.Fatalf("second import after first = %v", err)
	}
	outcome, err := svc.Result(ctx, "e1", second.ID)
	if err != nil || outcome.SuccessCount != 5 {
		t.Fatalf("second outcome = %+v, %v", outcome, err)
	}
	if store.students[9].Matricule != "MAT-2024-0010" {
		t.Errorf("second batch should continue the sequence, got %s", store.students[9].Matricule)
	}
}

func TestCancelImport(t *testing.T) {
	store := newBlockingStore()
	svc := newTestService(store, ServiceConfig{})
	ctx := context.Background()

	sess, err := svc.Prepare(ctx, "e1", "a.csv", csvFile("Nom,Prénom,Classe", "N,A,CE1", "N,B,CE1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.CancelImport("e1", sess.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("cancel before start = %v, want ErrInvalidState", err)
	}

	if err := svc.StartImport(ctx, "e1", sess.ID); err != nil {
		t.Fatal(err)
	}
	<-store.started
	if err := svc.CancelImport("e1", sess.ID); err != nil {
		t.Fatalf("CancelImport: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	outcome, err := svc.Result(waitCtx, "e1", sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.State != StateCancelled || outcome.SuccessCount != 0 {
		t.Errorf("outcome = %+v", outcome)
	}
	if err := svc.WaitForImports(waitCtx); err != nil {
		t.Errorf("WaitForImports: %v", err)
	}
}

func TestSessions_AreTenantScoped(t *testing.T) {
	svc := newTestService(newFakeStore(), ServiceConfig{})
	sess, err := svc.Prepare(context.Background(), "e1", "a.csv", csvFile("Nom,Prénom,Classe", "N,A,CE1"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Session("e2", sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("other tenant Session = %v", err)
	}
	if err := svc.StartImport(context.Background(), "e2", sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("other tenant StartImport = %v", err)
	}
	if _, err := svc.Result(context.Background(), "e1", sess.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Result before start = %v, want ErrInvalidState", err)
	}

	if err := svc.Discard("e1", sess.ID); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if _, err := svc.Session("e1", sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Session after Discard = %v", err)
	}
}

func TestSessions_ExpireAfterTTL(t *testing.T) {
	svc := newTestService(newFakeStore(), ServiceConfig{SessionTTL: 20 * time.Millisecond})
	sess, err := svc.Prepare(context.Background(), "e1", "a.csv", csvFile("Nom,Prénom,Classe", "N,A,CE1"))
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := svc.Session("e1", sess.ID); errors.Is(err, ErrSessionNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("session still present after TTL")
}
