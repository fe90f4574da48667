package config

import "testing"

func baseConfig() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Tenants: []TenantEntry{
			{ID: "t1", Name: "Acme", Tier: "pro", APIKey: "key-1", Active: true},
			{ID: "t2", Name: "Indie", Tier: "free", APIKey: "key-2", Active: true},
		},
	}
}

// ─── TestDiff_NoChanges ───

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	d := Diff(baseConfig(), baseConfig())
	if d.TenantsChanged || d.LogLevelChanged {
		t.Errorf("diff = %+v, want empty", d)
	}
}

// ─── TestDiff_LogLevel ───

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()

	next := baseConfig()
	next.Server.LogLevel = LogDebug
	d := Diff(baseConfig(), next)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
}

// ─── TestDiff_TenantLifecycle ───

func TestDiff_TenantLifecycle(t *testing.T) {
	t.Parallel()

	next := baseConfig()
	next.Tenants[0].Active = false                                        // changed
	next.Tenants = append(next.Tenants[:1], TenantEntry{ID: "t3", APIKey: "key-3"}) // t2 removed, t3 added

	d := Diff(baseConfig(), next)
	if !d.TenantsChanged {
		t.Fatal("tenant changes not detected")
	}
	got := map[string]TenantDiff{}
	for _, td := range d.TenantChanges {
		got[td.ID] = td
	}
	if !got["t1"].Changed {
		t.Errorf("t1 = %+v, want changed", got["t1"])
	}
	if !got["t2"].Removed {
		t.Errorf("t2 = %+v, want removed", got["t2"])
	}
	if !got["t3"].Added {
		t.Errorf("t3 = %+v, want added", got["t3"])
	}
}

// ─── TestDiff_LanguageListCompared ───

func TestDiff_LanguageListCompared(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	old.Tenants[0].Languages = []string{"zh", "en"}
	next := baseConfig()
	next.Tenants[0].Languages = []string{"zh"}

	d := Diff(old, next)
	if !d.TenantsChanged {
		t.Error("language whitelist change not detected")
	}
}
