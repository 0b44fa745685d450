package dashboard

import (
	"path/filepath"
	"testing"

	"github.com/finsurf/finsurf/internal/agents"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	sess := store.Create("KO", "light")
	if sess.Status != StatusRunning {
		t.Fatalf("new session status = %s", sess.Status)
	}
	if store.Get(sess.Token) != sess {
		t.Fatal("lookup by token failed")
	}
	if store.Get("missing") != nil {
		t.Fatal("unknown token should be nil")
	}

	store.Complete(sess.Token, agents.Result{Ticker: "KO"}, "<html></html>")
	if sess.Status != StatusCompleted || sess.ReportHTML == "" {
		t.Fatalf("completion not applied: %+v", sess)
	}
}

func TestSessionStoreBlockedResult(t *testing.T) {
	store := NewSessionStore()
	sess := store.Create("KO", "light")
	store.Complete(sess.Token, agents.Result{Ticker: "KO", Blocked: true}, "<html></html>")
	if sess.Status != StatusBlocked {
		t.Fatalf("status = %s, want blocked", sess.Status)
	}
}

func TestBeginExportGuard(t *testing.T) {
	store := NewSessionStore()
	sess := store.Create("KO", "light")

	if _, ok, busy := store.BeginExport(sess.Token); ok || busy {
		t.Fatal("running session must not be exportable")
	}

	store.Complete(sess.Token, agents.Result{}, "<html>x</html>")
	html, ok, busy := store.BeginExport(sess.Token)
	if !ok || busy || html != "<html>x</html>" {
		t.Fatalf("first claim failed: ok=%v busy=%v", ok, busy)
	}
	if _, ok, busy := store.BeginExport(sess.Token); ok || !busy {
		t.Fatal("second claim must report busy")
	}
	store.EndExport(sess.Token)
	if _, ok, _ := store.BeginExport(sess.Token); !ok {
		t.Fatal("slot must reopen after EndExport")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "dashboard.json")

	store := NewSessionStore()
	done := store.Create("KO", "dark")
	store.Complete(done.Token, agents.Result{Ticker: "KO", Tax: "## Long-Term"}, "<html></html>")
	running := store.Create("NVDA", "light")

	if err := SaveState(path, PersistedState{Sessions: store.Snapshot()}); err != nil {
		t.Fatalf("save: %v", err)
	}

	state, err := LoadState(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	restored := NewSessionStore()
	restored.Restore(state.Sessions)

	got := restored.Get(done.Token)
	if got == nil || got.Status != StatusCompleted || got.Result == nil {
		t.Fatalf("completed session lost: %+v", got)
	}
	interrupted := restored.Get(running.Token)
	if interrupted == nil || interrupted.Status != StatusError {
		t.Fatalf("mid-run session should come back errored: %+v", interrupted)
	}
}

func TestLoadStateMissingFile(t *testing.T) {
	state, err := LoadState(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if state.Sessions == nil {
		t.Fatal("sessions map must be initialized")
	}
}
