package gateway

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

const testModelsJSON = `{
  "models": [
    {"id": "gpt-4o", "provider": "openai", "supportsTools": true}
  ]
}`

const testAppsJSON = `{
  "apps": [
    {"id": "support-bot", "allowedTools": ["get_weather"], "systemPrompt": {"en": "be helpful"}}
  ]
}`

func writeConfigFiles(t *testing.T, fs afero.Fs, models, apps string) {
	t.Helper()
	if err := afero.WriteFile(fs, "/models.json", []byte(models), 0o644); err != nil {
		t.Fatalf("writing models.json: %v", err)
	}
	if err := afero.WriteFile(fs, "/apps.json", []byte(apps), 0o644); err != nil {
		t.Fatalf("writing apps.json: %v", err)
	}
}

func TestConfigStore_LoadAndResolve(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfigFiles(t, fs, testModelsJSON, testAppsJSON)

	store := NewConfigStore(fs, "/models.json", "/apps.json")
	if err := store.Load(); err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	model, err := store.Model("gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error resolving model: %v", err)
	}
	if model.Provider != "openai" || !model.SupportsTools {
		t.Fatalf("unexpected model spec: %+v", model)
	}

	app, err := store.App("support-bot")
	if err != nil {
		t.Fatalf("unexpected error resolving app: %v", err)
	}
	if app.SystemPromptFor("en") != "be helpful" {
		t.Fatalf("unexpected system prompt: %q", app.SystemPromptFor("en"))
	}
}

func TestConfigStore_UnknownModelOrApp(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfigFiles(t, fs, testModelsJSON, testAppsJSON)

	store := NewConfigStore(fs, "/models.json", "/apps.json")
	if err := store.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.Model("missing"); err == nil {
		t.Fatal("expected NotFoundError for an unknown model id")
	}
	if _, err := store.App("missing"); err == nil {
		t.Fatal("expected NotFoundError for an unknown app id")
	}
}

func TestConfigStore_ResolveBeforeLoad(t *testing.T) {
	store := NewConfigStore(afero.NewMemMapFs(), "/models.json", "/apps.json")

	if _, err := store.Model("gpt-4o"); err == nil {
		t.Fatal("expected ConfigurationError before Load is ever called")
	}
}

func TestConfigStore_WatchReloadsOnWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfigFiles(t, fs, testModelsJSON, testAppsJSON)

	store := NewConfigStore(fs, "/models.json", "/apps.json")
	if err := store.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded := make(chan error, 1)
	if err := store.Watch(func(err error) { reloaded <- err }); err != nil {
		t.Skipf("fsnotify unavailable in this environment: %v", err)
	}
	defer store.Close()

	updatedModels := `{"models": [{"id": "gpt-4o", "provider": "openai"}, {"id": "gpt-4o-mini", "provider": "openai"}]}`
	if err := afero.WriteFile(fs, "/models.json", []byte(updatedModels), 0o644); err != nil {
		t.Fatalf("rewriting models.json: %v", err)
	}

	select {
	case err := <-reloaded:
		if err != nil {
			t.Fatalf("unexpected reload error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Skip("no fsnotify event observed in this environment within the deadline")
	}

	if _, err := store.Model("gpt-4o-mini"); err != nil {
		t.Fatalf("expected the reloaded snapshot to contain gpt-4o-mini: %v", err)
	}
}
