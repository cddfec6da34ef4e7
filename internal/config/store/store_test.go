package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Options{
		InstanceName: "test",
		DBPath:       filepath.Join(t.TempDir(), "config.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenSeedsDefaultSettings(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	settings, err := st.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if _, ok := settings[SettingAuthToken]; !ok {
		t.Fatalf("expected seeded %s, got %v", SettingAuthToken, settings)
	}
	if settings[SettingRetentionHours] != "24" {
		t.Fatalf("retention = %q, want 24", settings[SettingRetentionHours])
	}
}

func TestSaveAndLoadSettings(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.SaveSettings(ctx, map[string]string{SettingAuthToken: "secret"}); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	value, err := st.GetSetting(ctx, SettingAuthToken)
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if value != "secret" {
		t.Fatalf("value = %q, want secret", value)
	}

	settings, err := st.LoadSettings(ctx, SettingAuthToken)
	if err != nil {
		t.Fatalf("load filtered settings: %v", err)
	}
	if len(settings) != 1 || settings[SettingAuthToken] != "secret" {
		t.Fatalf("filtered settings = %v", settings)
	}
}

func TestGetSettingNotFound(t *testing.T) {
	st := openTestStore(t)

	_, err := st.GetSetting(context.Background(), "no.such.key")
	if !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestSeedNeverOverwrites(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "config.db")
	ctx := context.Background()

	st, err := Open(Options{InstanceName: "test", DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.SaveSettings(ctx, map[string]string{SettingRetentionHours: "48"}); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	st.Close()

	st, err = Open(Options{InstanceName: "test", DBPath: dbPath})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()

	value, err := st.GetSetting(ctx, SettingRetentionHours)
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if value != "48" {
		t.Fatalf("value = %q, want 48 after reopen", value)
	}
}
