package config

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded are tracked; everything else needs a restart.
type ConfigDiff struct {
	TenantsChanged  bool
	TenantChanges   []TenantDiff
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// TenantDiff describes what changed for a single tenant between two configs.
type TenantDiff struct {
	ID      string
	Changed bool
	Added   bool
	Removed bool
}

// Diff compares old and new configs and returns what changed. Only tracks
// changes that are safe to apply without restart: the tenant list and the
// log level.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldTenants := make(map[string]TenantEntry, len(old.Tenants))
	for _, t := range old.Tenants {
		oldTenants[t.ID] = t
	}
	newTenants := make(map[string]TenantEntry, len(new.Tenants))
	for _, t := range new.Tenants {
		newTenants[t.ID] = t
	}

	for id, oldT := range oldTenants {
		newT, exists := newTenants[id]
		if !exists {
			d.TenantChanges = append(d.TenantChanges, TenantDiff{ID: id, Removed: true})
			d.TenantsChanged = true
			continue
		}
		if !entryEqual(oldT, newT) {
			d.TenantChanges = append(d.TenantChanges, TenantDiff{ID: id, Changed: true})
			d.TenantsChanged = true
		}
	}
	for id := range newTenants {
		if _, exists := oldTenants[id]; !exists {
			d.TenantChanges = append(d.TenantChanges, TenantDiff{ID: id, Added: true})
			d.TenantsChanged = true
		}
	}

	return d
}

// entryEqual compares two tenant entries field by field. Languages is the
// only slice field, so a manual comparison keeps TenantEntry comparable
// enough without reflection.
func entryEqual(a, b TenantEntry) bool {
	if a.Name != b.Name || a.Tier != b.Tier || a.APIKey != b.APIKey ||
		a.DailyBudgetUSD != b.DailyBudgetUSD || a.Active != b.Active ||
		a.ForceGenerativeOff != b.ForceGenerativeOff || a.RatePerMinute != b.RatePerMinute {
		return false
	}
	if len(a.Languages) != len(b.Languages) {
		return false
	}
	for i := range a.Languages {
		if a.Languages[i] != b.Languages[i] {
			return false
		}
	}
	return true
}
