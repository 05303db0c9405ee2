package settings

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestStoreUpdateResetsModelOnProviderChange(t *testing.T) {
	store := NewMemoryStore(Settings{APIKeyType: APIKeyTypeCustom, ChatProvider: "openai", ChatModel: "gpt-5"})
	if err := store.Update(func(s *Settings) error {
		s.ChatProvider = "anthropic"
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := store.Snapshot(); got.ChatProvider != "anthropic" || got.ChatModel != "" {
		t.Fatalf("expected model reset, got %+v", got)
	}

	if err := store.Update(func(s *Settings) error {
		s.ChatProvider = "google"
		s.ChatModel = "gemini-2.5-pro"
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := store.Snapshot(); got.ChatModel != "gemini-2.5-pro" {
		t.Fatalf("explicit model must be kept, got %+v", got)
	}
}

func TestStoreUpdateFailureLeavesStateUntouched(t *testing.T) {
	store := NewMemoryStore(Default())
	calls := 0
	store.Subscribe(func(prev, next Settings) { calls++ })

	boom := errors.New("boom")
	if err := store.Update(func(s *Settings) error {
		s.ChatProvider = "openai"
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}
	if err := store.Update(func(s *Settings) error {
		s.OpenAIProxyURL = "not-a-url"
		return nil
	}); err == nil {
		t.Fatal("expected validation error")
	}
	if store.Snapshot().ChatProvider != "" || store.Snapshot().OpenAIProxyURL != "" {
		t.Fatalf("state changed after failed updates: %+v", store.Snapshot())
	}
	if calls != 0 {
		t.Fatalf("listeners must not run on failed updates, got %d calls", calls)
	}
}

func TestStoreSkipsNoopUpdates(t *testing.T) {
	store := NewMemoryStore(Default())
	calls := 0
	store.Subscribe(func(prev, next Settings) { calls++ })
	if err := store.Update(func(s *Settings) error {
		s.APIKeyType = " CUSTOM "
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Fatalf("expected no notification for normalized no-op, got %d", calls)
	}
}

func TestStoreNestedUpdatesDeliveredInCommitOrder(t *testing.T) {
	store := NewMemoryStore(Default())
	var seen [][2]string
	record := func(prev, next Settings) {
		seen = append(seen, [2]string{string(next.APIKeyType), next.ChatProvider})
	}
	store.Subscribe(func(prev, next Settings) {
		record(prev, next)
		if next.IsBuiltin() && next.ChatProvider != "builtin" {
			if err := store.Update(func(s *Settings) error {
				s.ChatProvider = "builtin"
				return nil
			}); err != nil {
				t.Errorf("nested update: %v", err)
			}
			if got := store.Snapshot().ChatProvider; got != "builtin" {
				t.Errorf("nested update must be committed immediately, got %q", got)
			}
		}
	})
	var second [][2]string
	store.Subscribe(func(prev, next Settings) {
		second = append(second, [2]string{string(next.APIKeyType), next.ChatProvider})
	})

	if err := store.Update(func(s *Settings) error {
		s.APIKeyType = APIKeyTypeBuiltin
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	want := [][2]string{{"builtin", ""}, {"builtin", "builtin"}}
	for name, got := range map[string][][2]string{"first": seen, "second": second} {
		if len(got) != len(want) {
			t.Fatalf("%s listener saw %v, want %v", name, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s listener saw %v, want %v", name, got, want)
			}
		}
	}
}

func TestStoreUnsubscribe(t *testing.T) {
	store := NewMemoryStore(Default())
	calls := 0
	unsubscribe := store.Subscribe(func(prev, next Settings) { calls++ })
	_ = store.Update(func(s *Settings) error { s.ChatProvider = "openai"; return nil })
	unsubscribe()
	unsubscribe()
	_ = store.Update(func(s *Settings) error { s.ChatProvider = "google"; return nil })
	if calls != 1 {
		t.Fatalf("expected one call before unsubscribe, got %d", calls)
	}
}

func TestOpenPersistsUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Update(func(s *Settings) error {
		s.APIKeyType = APIKeyTypeBuiltin
		s.BuiltinModelAccessKey = "access-1"
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := reopened.Snapshot()
	if !got.IsBuiltin() || got.BuiltinModelAccessKey != "access-1" {
		t.Fatalf("unexpected persisted settings %+v", got)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	store := NewMemoryStore(Settings{APIKeys: map[string]string{"openai": "sk"}})
	snap := store.Snapshot()
	snap.APIKeys["openai"] = "changed"
	if store.Snapshot().APIKey("openai") != "sk" {
		t.Fatal("snapshot must not alias store state")
	}
}
