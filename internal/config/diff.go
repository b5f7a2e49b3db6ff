package config

// ChangeSet describes what changed between two configs. Only log level
// changes can be hot-reloaded; everything else needs a restart to take
// effect, since sessions bake their policy at open time.
type ChangeSet struct {
	// LogLevelChanged is true when server.log_level differs.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired is true when any setting outside the hot-reloadable
	// set differs.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ChangeSet {
	var d ChangeSet

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Compare everything else with the log level normalised away.
	oldCopy, newCopy := *old, *new
	oldCopy.Server.LogLevel = newCopy.Server.LogLevel
	if !equal(&oldCopy, &newCopy) {
		d.RestartRequired = true
	}
	return d
}

// equal compares two configs field by field. Pointer fields are compared by
// value.
func equal(a, b *Config) bool {
	if a.Server.ListenAddr != b.Server.ListenAddr ||
		a.Server.MaxSessions != b.Server.MaxSessions ||
		!tlsEqual(a.Server.TLS, b.Server.TLS) {
		return false
	}
	if a.Model != b.Model {
		return false
	}
	ar, br := a.Recognition, b.Recognition
	if !fallbackEqual(ar.Fallback, br.Fallback) {
		return false
	}
	ar.Fallback, br.Fallback = nil, nil
	if ar != br {
		return false
	}
	return a.VAD == b.VAD &&
		a.Segmentation == b.Segmentation &&
		a.Stream == b.Stream &&
		a.Store == b.Store &&
		a.Batch == b.Batch
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fallbackEqual(a, b *FallbackConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
