package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (audio devices, wake engine, transcription provider) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MappingsChanged is true if the phrase→command mappings differ in
	// content or order.
	MappingsChanged bool

	// PolicyChanged is true if any authorization policy field differs
	// (allowed/blocked lists, dangerous keywords, confirmation settings).
	PolicyChanged bool
}

// Any reports whether the diff contains at least one tracked change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.MappingsChanged || d.PolicyChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Mapping order matters (first match wins), so compare positionally.
	if !slices.Equal(old.PowerWords.Mappings, new.PowerWords.Mappings) {
		d.MappingsChanged = true
	}

	if policyChanged(&old.PowerWords, &new.PowerWords) {
		d.PolicyChanged = true
	}

	return d
}

// policyChanged compares the authorization-relevant fields of two
// power-words configs, ignoring the mappings.
func policyChanged(old, new *PowerWordsConfig) bool {
	switch {
	case old.Enabled != new.Enabled,
		old.MaxCommandLength != new.MaxCommandLength,
		old.RequireConfirmation != new.RequireConfirmation,
		old.ConfirmationMethod != new.ConfirmationMethod,
		old.ConfirmationTimeout != new.ConfirmationTimeout,
		old.ConfirmationRetries != new.ConfirmationRetries,
		old.AutoApproveSafe != new.AutoApproveSafe:
		return true
	}
	return !slices.Equal(old.Allowed, new.Allowed) ||
		!slices.Equal(old.Blocked, new.Blocked) ||
		!slices.Equal(old.DangerousKeywords, new.DangerousKeywords)
}
