// Package command implements the voice-command pipeline: matching finalized
// transcript text against configured phrase mappings, authorizing matched
// commands through a multi-stage policy, confirming them with the user when
// required, and executing approved commands in a sandboxed child process.
package command

import "time"

// SafetyClass is the heuristic label deciding whether a command may bypass
// interactive confirmation.
type SafetyClass string

const (
	// SafetySafe marks known-benign commands: shortcuts, URLs,
	// whitelisted binaries.
	SafetySafe SafetyClass = "safe"

	// SafetyDangerous marks commands containing a configured dangerous
	// keyword. Dangerous commands are never executed.
	SafetyDangerous SafetyClass = "dangerous"

	// SafetyUnknown marks everything else; unknown commands always
	// require confirmation.
	SafetyUnknown SafetyClass = "unknown"
)

// Mapping binds a spoken trigger phrase to the command it resolves to.
// Mappings are evaluated in declaration order.
type Mapping struct {
	Phrase  string
	Command string
}

// Pending is a candidate command produced by the matcher, awaiting
// authorization. It is created on match and discarded once decided.
type Pending struct {
	// MatchedPhrase is the trigger phrase as configured.
	MatchedPhrase string

	// Resolved is the command the phrase maps to.
	Resolved string

	// MatchedAt is when the match occurred.
	MatchedAt time.Time
}

// Decision is the outcome of authorizing a Pending command.
type Decision struct {
	Approved bool

	// Reason explains a denial, or how an approval was reached
	// ("auto-approved safe command", "confirmed by voice").
	Reason string

	// Safety is the classification assigned during authorization; empty
	// when the pipeline rejected the command before classifying it.
	Safety SafetyClass
}
