package command_test

import (
	"context"
	"testing"
	"time"

	"github.com/harkd/hark/internal/command"
	asrmock "github.com/harkd/hark/pkg/asr/mock"
	audiomock "github.com/harkd/hark/pkg/audio/mock"
)

func TestParseConfirmation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text    string
		verdict bool
		decided bool
	}{
		{"yes", true, true},
		{"Yeah, go ahead", true, true},
		{"okay sure", true, true},
		{"proceed", true, true},
		{"no", false, true},
		{"nope cancel that", false, true},
		{"abort", false, true},
		{"", false, false},
		{"the weather is nice", false, false},
	}
	for _, tt := range tests {
		verdict, decided := command.ParseConfirmation(tt.text)
		if verdict != tt.verdict || decided != tt.decided {
			t.Errorf("ParseConfirmation(%q) = (%v, %v), want (%v, %v)",
				tt.text, verdict, decided, tt.verdict, tt.decided)
		}
	}
}

// pump feeds 100 ms frames into the mock source whenever it is recording,
// standing in for the dedicated confirmation microphone.
func pump(t *testing.T, src *audiomock.Source) (stop func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		pcm := make([]byte, 16000*2/10)
		for {
			select {
			case <-done:
				return
			default:
			}
			if src.Started() {
				src.EmitPCM(pcm)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	return func() { close(done) }
}

func TestVoiceConfirmer_Affirmative(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	defer pump(t, src)()

	c := command.NewVoiceConfirmer(src, asrmock.New("yes"),
		command.WithConfirmTimeout(2*time.Second),
		command.WithConfirmRetries(0),
		command.WithConfirmWindow(50*time.Millisecond))

	approved, err := c.Confirm(context.Background(), pending("echo hi"))
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !approved {
		t.Error("affirmative response should approve")
	}
}

func TestVoiceConfirmer_Negative(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	defer pump(t, src)()

	c := command.NewVoiceConfirmer(src, asrmock.New("no way"),
		command.WithConfirmTimeout(2*time.Second),
		command.WithConfirmRetries(0),
		command.WithConfirmWindow(50*time.Millisecond))

	approved, err := c.Confirm(context.Background(), pending("echo hi"))
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if approved {
		t.Error("negative response should deny")
	}
}

func TestVoiceConfirmer_TimeoutDenies(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	defer pump(t, src)()

	// Gateway only ever hears silence; zero retries and no clear answer
	// within the timeout must deny.
	c := command.NewVoiceConfirmer(src, asrmock.New(),
		command.WithConfirmTimeout(200*time.Millisecond),
		command.WithConfirmRetries(0),
		command.WithConfirmWindow(50*time.Millisecond))

	approved, err := c.Confirm(context.Background(), pending("echo hi"))
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if approved {
		t.Error("timeout with no response should deny")
	}
}

func TestVoiceConfirmer_SourceStoppedAfterAttempt(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	defer pump(t, src)()

	c := command.NewVoiceConfirmer(src, asrmock.New("yes"),
		command.WithConfirmTimeout(time.Second),
		command.WithConfirmRetries(0),
		command.WithConfirmWindow(50*time.Millisecond))

	if _, err := c.Confirm(context.Background(), pending("echo hi")); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if src.Started() {
		t.Error("confirmation capture still running after Confirm returned")
	}
	if src.StopCalls() == 0 {
		t.Error("Stop never called on the confirmation source")
	}
}

func TestLogOnlyConfirmer(t *testing.T) {
	t.Parallel()

	approve := &command.LogOnlyConfirmer{Approve: true}
	if ok, _ := approve.Confirm(context.Background(), pending("echo hi")); !ok {
		t.Error("Approve=true should confirm")
	}
	deny := &command.LogOnlyConfirmer{}
	if ok, _ := deny.Confirm(context.Background(), pending("echo hi")); ok {
		t.Error("Approve=false should deny")
	}
}
