package command_test

import (
	"testing"

	"github.com/harkd/hark/internal/command"
)

func TestMatcher_NaturalPhrasing(t *testing.T) {
	t.Parallel()

	m, err := command.NewMatcher([]command.Mapping{
		{Phrase: "turn on the lights", Command: "lights_on"},
	})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	pendings, _ := m.Match("can you please turn on the lights")
	if len(pendings) != 1 {
		t.Fatalf("got %d matches, want 1", len(pendings))
	}
	if pendings[0].MatchedPhrase != "turn on the lights" || pendings[0].Resolved != "lights_on" {
		t.Errorf("unexpected match: %+v", pendings[0])
	}
}

func TestMatcher_WordBoundary(t *testing.T) {
	t.Parallel()

	m, err := command.NewMatcher([]command.Mapping{
		{Phrase: "light", Command: "light_cmd"},
	})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	if pendings, _ := m.Match("what a delightful evening"); len(pendings) != 0 {
		t.Errorf("matched inside a larger word: %+v", pendings)
	}
	if pendings, _ := m.Match("dim the light please"); len(pendings) != 1 {
		t.Errorf("whole word did not match: %+v", pendings)
	}
}

func TestMatcher_MultipleMatchesInDeclarationOrder(t *testing.T) {
	t.Parallel()

	m, err := command.NewMatcher([]command.Mapping{
		{Phrase: "open browser", Command: "browser"},
		{Phrase: "play music", Command: "music"},
	})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	pendings, _ := m.Match("play music and then open browser")
	if len(pendings) != 2 {
		t.Fatalf("got %d matches, want 2", len(pendings))
	}
	// Declaration order, not utterance order.
	if pendings[0].Resolved != "browser" || pendings[1].Resolved != "music" {
		t.Errorf("match order = [%s, %s], want [browser, music]",
			pendings[0].Resolved, pendings[1].Resolved)
	}
}

func TestMatcher_StripsMatchedPhrases(t *testing.T) {
	t.Parallel()

	m, err := command.NewMatcher([]command.Mapping{
		{Phrase: "turn on the lights", Command: "lights_on"},
	})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	_, remainder := m.Match("please Turn On The Lights now")
	if remainder != "please now" {
		t.Errorf("remainder = %q, want %q", remainder, "please now")
	}
}

func TestMatcher_NoMatchKeepsTextUntouched(t *testing.T) {
	t.Parallel()

	m, err := command.NewMatcher([]command.Mapping{
		{Phrase: "open browser", Command: "browser"},
	})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	const text = "just some dictation"
	pendings, remainder := m.Match(text)
	if pendings != nil || remainder != text {
		t.Errorf("Match(%q) = %v, %q; want nil, original text", text, pendings, remainder)
	}
}

func TestMatcher_ReloadIsAtomic(t *testing.T) {
	t.Parallel()

	m, err := command.NewMatcher([]command.Mapping{
		{Phrase: "old phrase", Command: "old_cmd"},
	})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	if err := m.Reload([]command.Mapping{
		{Phrase: "new phrase", Command: "new_cmd"},
	}); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if pendings, _ := m.Match("say the old phrase"); len(pendings) != 0 {
		t.Errorf("old mapping still matches after reload: %+v", pendings)
	}
	if pendings, _ := m.Match("say the new phrase"); len(pendings) != 1 {
		t.Errorf("new mapping missing after reload: %+v", pendings)
	}
}

func TestMatcher_ReloadErrorKeepsOldSet(t *testing.T) {
	t.Parallel()

	m, err := command.NewMatcher([]command.Mapping{
		{Phrase: "open browser", Command: "browser"},
	})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	if err := m.Reload([]command.Mapping{{Phrase: "", Command: "x"}}); err == nil {
		t.Fatal("Reload with empty phrase should fail")
	}
	if pendings, _ := m.Match("open browser"); len(pendings) != 1 {
		t.Error("previous mapping set lost after failed reload")
	}
}

func TestNewMatcher_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mappings []command.Mapping
	}{
		{"empty phrase", []command.Mapping{{Phrase: " ", Command: "x"}}},
		{"empty command", []command.Mapping{{Phrase: "ok phrase", Command: ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := command.NewMatcher(tt.mappings); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
