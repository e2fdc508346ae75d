package command

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
)

// DefaultDangerousKeywords is the fallback dangerous-keyword list applied
// when the configuration does not set one.
var DefaultDangerousKeywords = []string{
	"delete", "format", "sudo", "admin", "reboot", "shutdown",
	"rm -rf", "del /f", "format c:", "registry", "taskkill", "net user",
}

// safePatterns recognise known-benign command shapes: shortcuts, URLs, and
// a handful of harmless applications.
var safePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.lnk$`),
	regexp.MustCompile(`^https?://`),
	regexp.MustCompile(`explorer\.exe`),
	regexp.MustCompile(`notepad`),
	regexp.MustCompile(`chrome\.exe`),
	regexp.MustCompile(`start menu`),
	regexp.MustCompile(`^xdg-open\b`),
}

// Policy is the frozen authorization configuration. Lists are matched
// case-insensitively; the Authorizer normalises them at construction.
type Policy struct {
	// Enabled gates the whole command feature. When false every match
	// is denied.
	Enabled bool

	// MaxCommandLength denies any resolved command longer than this.
	MaxCommandLength int

	// Blocked denies any command containing one of these substrings.
	// Blocked wins over Allowed when a command matches both.
	Blocked []string

	// Allowed, when non-empty, denies any command whose first word is
	// not in the list.
	Allowed []string

	// DangerousKeywords classify a command as dangerous on substring
	// match. Empty falls back to DefaultDangerousKeywords.
	DangerousKeywords []string

	// RequireConfirmation demands interactive confirmation for commands
	// that are not auto-approved.
	RequireConfirmation bool

	// AutoApproveSafe approves safe-classified commands without
	// confirmation.
	AutoApproveSafe bool
}

// Authorizer runs matched commands through the multi-stage policy pipeline:
// feature gate, length check, blacklist, whitelist, safety classification,
// confirmation. Every outcome is logged with the original phrase and the
// resolved command. Safe for concurrent use; the policy is read-only after
// construction.
type Authorizer struct {
	enabled             bool
	maxLength           int
	blocked             []string
	allowed             []string
	dangerous           []string
	requireConfirmation bool
	autoApproveSafe     bool

	confirmer Confirmer
}

// NewAuthorizer builds an Authorizer from the policy. confirmer may be nil,
// in which case any command that would need confirmation is denied.
func NewAuthorizer(p Policy, confirmer Confirmer) *Authorizer {
	dangerous := p.DangerousKeywords
	if len(dangerous) == 0 {
		dangerous = DefaultDangerousKeywords
	}
	return &Authorizer{
		enabled:             p.Enabled,
		maxLength:           p.MaxCommandLength,
		blocked:             lowerAll(p.Blocked),
		allowed:             lowerAll(p.Allowed),
		dangerous:           lowerAll(dangerous),
		requireConfirmation: p.RequireConfirmation,
		autoApproveSafe:     p.AutoApproveSafe,
		confirmer:           confirmer,
	}
}

// Authorize decides whether a pending command may execute. The pipeline
// short-circuits on the first denial; a dangerous classification denies
// without ever consulting the confirmer.
func (a *Authorizer) Authorize(ctx context.Context, p Pending) Decision {
	d := a.decide(ctx, p)
	if d.Approved {
		slog.Info("command approved",
			"phrase", p.MatchedPhrase, "command", p.Resolved,
			"safety", string(d.Safety), "reason", d.Reason)
	} else {
		slog.Warn("command denied",
			"phrase", p.MatchedPhrase, "command", p.Resolved,
			"safety", string(d.Safety), "reason", d.Reason)
	}
	return d
}

func (a *Authorizer) decide(ctx context.Context, p Pending) Decision {
	if !a.enabled {
		return Decision{Reason: "voice commands disabled"}
	}

	if a.maxLength > 0 && len(p.Resolved) > a.maxLength {
		return Decision{Reason: fmt.Sprintf(
			"command too long: %d > %d", len(p.Resolved), a.maxLength)}
	}

	cmdLower := strings.ToLower(p.Resolved)
	for _, blocked := range a.blocked {
		if strings.Contains(cmdLower, blocked) {
			return Decision{Reason: fmt.Sprintf("command contains blocked term %q", blocked)}
		}
	}

	if len(a.allowed) > 0 {
		first, _, _ := strings.Cut(cmdLower, " ")
		if !slices.Contains(a.allowed, first) {
			return Decision{Reason: fmt.Sprintf("command %q not in allowed list", first)}
		}
	}

	safety := a.classify(cmdLower)
	if safety == SafetyDangerous {
		return Decision{Safety: safety, Reason: "dangerous command auto-denied"}
	}

	if safety == SafetySafe && a.autoApproveSafe {
		return Decision{Approved: true, Safety: safety, Reason: "auto-approved safe command"}
	}
	if !a.requireConfirmation {
		return Decision{Approved: true, Safety: safety, Reason: "confirmation not required"}
	}

	if a.confirmer == nil {
		return Decision{Safety: safety, Reason: "confirmation required but no confirmer configured"}
	}
	approved, err := a.confirmer.Confirm(ctx, p)
	if err != nil {
		return Decision{Safety: safety, Reason: fmt.Sprintf("confirmation failed: %v", err)}
	}
	if !approved {
		return Decision{Safety: safety, Reason: "confirmation denied"}
	}
	return Decision{Approved: true, Safety: safety, Reason: "confirmed by user"}
}

// classify assigns the safety class for an already lowercased command.
func (a *Authorizer) classify(cmdLower string) SafetyClass {
	for _, kw := range a.dangerous {
		if strings.Contains(cmdLower, kw) {
			return SafetyDangerous
		}
	}
	for _, pattern := range safePatterns {
		if pattern.MatchString(cmdLower) {
			return SafetySafe
		}
	}
	for _, allowed := range a.allowed {
		if strings.Contains(cmdLower, allowed) {
			return SafetySafe
		}
	}
	return SafetyUnknown
}

func lowerAll(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
