package command_test

import (
	"context"
	"errors"
	"testing"

	"github.com/harkd/hark/internal/command"
)

// confirmerSpy records whether Confirm was invoked and answers with a fixed
// verdict.
type confirmerSpy struct {
	verdict bool
	err     error
	calls   int
}

func (c *confirmerSpy) Confirm(_ context.Context, _ command.Pending) (bool, error) {
	c.calls++
	return c.verdict, c.err
}

func pending(cmd string) command.Pending {
	return command.Pending{MatchedPhrase: "test phrase", Resolved: cmd}
}

func TestAuthorizer_FeatureGate(t *testing.T) {
	t.Parallel()

	a := command.NewAuthorizer(command.Policy{Enabled: false}, nil)
	if d := a.Authorize(context.Background(), pending("echo hi")); d.Approved {
		t.Errorf("disabled feature approved a command: %+v", d)
	}
}

func TestAuthorizer_MaxLength(t *testing.T) {
	t.Parallel()

	a := command.NewAuthorizer(command.Policy{
		Enabled:          true,
		MaxCommandLength: 5,
	}, nil)
	if d := a.Authorize(context.Background(), pending("a much too long command")); d.Approved {
		t.Errorf("over-length command approved: %+v", d)
	}
}

func TestAuthorizer_Blacklist(t *testing.T) {
	t.Parallel()

	a := command.NewAuthorizer(command.Policy{
		Enabled: true,
		Blocked: []string{"rm -rf"},
	}, nil)
	if d := a.Authorize(context.Background(), pending("rm -rf /tmp/x")); d.Approved {
		t.Errorf("blacklisted command approved: %+v", d)
	}
}

func TestAuthorizer_WhitelistFirstToken(t *testing.T) {
	t.Parallel()

	a := command.NewAuthorizer(command.Policy{
		Enabled:         true,
		Allowed:         []string{"echo"},
		AutoApproveSafe: true,
	}, nil)

	if d := a.Authorize(context.Background(), pending("echo hello")); !d.Approved {
		t.Errorf("whitelisted command denied: %+v", d)
	}
	if d := a.Authorize(context.Background(), pending("cat /etc/passwd")); d.Approved {
		t.Errorf("non-whitelisted command approved: %+v", d)
	}
}

func TestAuthorizer_BlacklistWinsOverWhitelist(t *testing.T) {
	t.Parallel()

	// A command matching both lists must resolve to Denied.
	a := command.NewAuthorizer(command.Policy{
		Enabled:         true,
		Allowed:         []string{"shutdown"},
		Blocked:         []string{"shutdown"},
		AutoApproveSafe: true,
	}, nil)
	if d := a.Authorize(context.Background(), pending("shutdown now")); d.Approved {
		t.Errorf("blacklist did not win over whitelist: %+v", d)
	}
}

func TestAuthorizer_DangerousNeverConsultsConfirmer(t *testing.T) {
	t.Parallel()

	spy := &confirmerSpy{verdict: true}
	a := command.NewAuthorizer(command.Policy{
		Enabled:             true,
		DangerousKeywords:   []string{"format"},
		RequireConfirmation: true,
	}, spy)

	d := a.Authorize(context.Background(), pending("format the disk"))
	if d.Approved {
		t.Errorf("dangerous command approved: %+v", d)
	}
	if d.Safety != command.SafetyDangerous {
		t.Errorf("Safety = %q, want dangerous", d.Safety)
	}
	if spy.calls != 0 {
		t.Errorf("confirmer invoked %d times for dangerous command, want 0", spy.calls)
	}
}

func TestAuthorizer_SafeAutoApprove(t *testing.T) {
	t.Parallel()

	spy := &confirmerSpy{}
	a := command.NewAuthorizer(command.Policy{
		Enabled:             true,
		RequireConfirmation: true,
		AutoApproveSafe:     true,
	}, spy)

	d := a.Authorize(context.Background(), pending("https://example.com"))
	if !d.Approved {
		t.Errorf("safe command not auto-approved: %+v", d)
	}
	if d.Safety != command.SafetySafe {
		t.Errorf("Safety = %q, want safe", d.Safety)
	}
	if spy.calls != 0 {
		t.Errorf("confirmer invoked for auto-approved safe command")
	}
}

func TestAuthorizer_UnknownRequiresConfirmation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		verdict bool
		err     error
		want    bool
	}{
		{"confirmed", true, nil, true},
		{"rejected", false, nil, false},
		{"confirmer error", true, errors.New("capture failed"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			spy := &confirmerSpy{verdict: tt.verdict, err: tt.err}
			a := command.NewAuthorizer(command.Policy{
				Enabled:             true,
				RequireConfirmation: true,
			}, spy)

			d := a.Authorize(context.Background(), pending("some-custom-tool --flag"))
			if d.Approved != tt.want {
				t.Errorf("Approved = %v, want %v (%+v)", d.Approved, tt.want, d)
			}
			if spy.calls != 1 {
				t.Errorf("confirmer calls = %d, want 1", spy.calls)
			}
			if d.Safety != command.SafetyUnknown {
				t.Errorf("Safety = %q, want unknown", d.Safety)
			}
		})
	}
}

func TestAuthorizer_NoConfirmerDeniesUnknown(t *testing.T) {
	t.Parallel()

	a := command.NewAuthorizer(command.Policy{
		Enabled:             true,
		RequireConfirmation: true,
	}, nil)
	if d := a.Authorize(context.Background(), pending("mystery-binary")); d.Approved {
		t.Errorf("unknown command approved with no confirmer: %+v", d)
	}
}

func TestAuthorizer_ConfirmationNotRequired(t *testing.T) {
	t.Parallel()

	a := command.NewAuthorizer(command.Policy{Enabled: true}, nil)
	if d := a.Authorize(context.Background(), pending("mystery-binary")); !d.Approved {
		t.Errorf("command denied with confirmation disabled: %+v", d)
	}
}

func TestAuthorizer_DefaultDangerousKeywords(t *testing.T) {
	t.Parallel()

	// Empty keyword list falls back to the defaults, which include sudo.
	a := command.NewAuthorizer(command.Policy{Enabled: true}, nil)
	d := a.Authorize(context.Background(), pending("sudo reboot"))
	if d.Approved || d.Safety != command.SafetyDangerous {
		t.Errorf("default dangerous keywords not applied: %+v", d)
	}
}
