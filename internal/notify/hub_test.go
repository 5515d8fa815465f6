package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/usafa/appointment-intake/internal/intake"
)

func TestHub_RegisterAndConnected(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	if hub.Connected("patient-1") {
		t.Fatal("expected no channel before registration")
	}

	client := hub.Register("patient-1", nil)
	if !hub.Connected("patient-1") {
		t.Fatal("expected channel after registration")
	}

	hub.Unregister(client)
	if hub.Connected("patient-1") {
		t.Fatal("expected no channel after unregister")
	}
}

func TestHub_NotifyDeliversToPatient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := hub.Register("patient-1", nil)

	summary := intake.Summary{
		ReferenceCode: "7A8B9C0D",
		DoctorName:    "Dr. Joao Silva",
		SpecialtyName: "Cardiology",
		Day:           "2025-12-01",
		Time:          "10:00",
		PatientName:   "Maria Souza",
	}

	if err := hub.Notify(context.Background(), "patient-1", summary); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}

	select {
	case msg := <-client.Send:
		var received intake.Summary
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal notification: %v", err)
		}
		if received.ReferenceCode != "7A8B9C0D" {
			t.Errorf("expected reference code 7A8B9C0D, got %q", received.ReferenceCode)
		}
	case <-time.After(time.Second):
		t.Fatal("patient did not receive notification")
	}
}

func TestHub_NotifyWithoutChannelIsDropped(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	// A disconnected patient is not an error; the record stays readable
	// through the normal query path.
	if err := hub.Notify(context.Background(), "nobody", intake.Summary{ReferenceCode: "X"}); err != nil {
		t.Fatalf("Notify to disconnected patient returned error: %v", err)
	}
}

func TestHub_NotifyDoesNotReachOtherPatients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	target := hub.Register("patient-1", nil)
	other := hub.Register("patient-2", nil)

	if err := hub.Notify(context.Background(), "patient-1", intake.Summary{ReferenceCode: "AAAA1111"}); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}

	select {
	case <-target.Send:
	case <-time.After(time.Second):
		t.Fatal("target patient did not receive notification")
	}

	select {
	case <-other.Send:
		t.Fatal("other patient should not have received notification")
	default:
		// expected
	}
}

// A patient disconnecting or reconnecting while the consumer is pushing a
// confirmation must never panic the hub. The send channel is only ever
// closed under the hub lock, so Notify either finds the live channel or
// drops the message.
func TestHub_NotifyDuringReconnectChurn(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	const rounds = 2000

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < rounds; i++ {
			client := hub.Register("patient-1", nil)
			hub.Unregister(client)
		}
	}()

	for i := 0; i < rounds; i++ {
		if err := hub.Notify(context.Background(), "patient-1", intake.Summary{ReferenceCode: "AAAA1111"}); err != nil {
			t.Fatalf("Notify returned error: %v", err)
		}
	}

	<-done
}

func TestHub_ReconnectDisplacesOldChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	old := hub.Register("patient-1", nil)
	fresh := hub.Register("patient-1", nil)

	// The old send channel is closed so its write pump exits.
	select {
	case _, ok := <-old.Send:
		if ok {
			t.Fatal("expected old channel to be closed, got a message")
		}
	case <-time.After(time.Second):
		t.Fatal("old channel was not closed")
	}

	if err := hub.Notify(context.Background(), "patient-1", intake.Summary{ReferenceCode: "BBBB2222"}); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}

	select {
	case <-fresh.Send:
	case <-time.After(time.Second):
		t.Fatal("new connection did not receive notification")
	}
}
