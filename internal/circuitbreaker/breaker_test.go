package circuitbreaker_test

import (
	"testing"
	"time"

	"github.com/jonesrussell/goharvest/internal/circuitbreaker"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	t.Parallel()

	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
	})

	if !b.CanExecute() {
		t.Fatal("expected closed breaker to permit execution")
	}

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != circuitbreaker.StateClosed {
		t.Fatalf("expected closed below threshold, got %s", b.State())
	}
	if !b.CanExecute() {
		t.Fatal("expected execution permitted below threshold")
	}

	b.RecordFailure()
	if b.State() != circuitbreaker.StateOpen {
		t.Fatalf("expected open at threshold, got %s", b.State())
	}
	if b.CanExecute() {
		t.Fatal("expected open breaker to reject execution")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
	})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	stats := b.GetStats()
	if stats.FailureCount != 0 {
		t.Errorf("expected failure count reset, got %d", stats.FailureCount)
	}
	if stats.State != "closed" {
		t.Errorf("expected closed, got %s", stats.State)
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()

	const recovery = 25 * time.Millisecond

	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 3,
		RecoveryTimeout:  recovery,
	})

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	if b.CanExecute() {
		t.Fatal("expected rejection while open")
	}

	time.Sleep(recovery + 10*time.Millisecond)

	if !b.CanExecute() {
		t.Fatal("expected probe permitted after recovery timeout")
	}
	if b.State() != circuitbreaker.StateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", b.State())
	}

	b.RecordSuccess()
	if b.State() != circuitbreaker.StateClosed {
		t.Fatalf("expected closed after probe success, got %s", b.State())
	}
	if b.GetStats().FailureCount != 0 {
		t.Error("expected failure count reset after close")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	const recovery = 25 * time.Millisecond

	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		RecoveryTimeout:  recovery,
	})

	b.RecordFailure()
	b.RecordFailure()
	time.Sleep(recovery + 10*time.Millisecond)

	if !b.CanExecute() {
		t.Fatal("expected half-open probe permitted")
	}

	b.RecordFailure()
	if b.State() != circuitbreaker.StateOpen {
		t.Fatalf("expected reopened after probe failure, got %s", b.State())
	}
	if b.CanExecute() {
		t.Fatal("expected rejection right after reopening")
	}
}

func TestParseState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected circuitbreaker.State
	}{
		{"closed", "closed", circuitbreaker.StateClosed},
		{"open", "open", circuitbreaker.StateOpen},
		{"half-open", "half-open", circuitbreaker.StateHalfOpen},
		{"unknown defaults to closed", "bogus", circuitbreaker.StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := circuitbreaker.ParseState(tt.input); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestRegistry_SnapshotRestore(t *testing.T) {
	t.Parallel()

	reg := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
	}, nil)

	reg.RecordFailure("acme")
	reg.RecordFailure("acme")
	reg.RecordSuccess("globex")

	snap := reg.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 breakers, got %d", len(snap))
	}
	if snap["acme"].State != "open" {
		t.Errorf("expected acme open, got %s", snap["acme"].State)
	}

	restored := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
	}, nil)
	restored.Restore(snap)

	if restored.CanExecute("acme") {
		t.Error("expected restored acme breaker to reject execution")
	}
	if !restored.CanExecute("globex") {
		t.Error("expected restored globex breaker to permit execution")
	}
}

func TestRegistry_StateChangeCallback(t *testing.T) {
	t.Parallel()

	type transition struct {
		source   string
		from, to circuitbreaker.State
	}

	var seen []transition
	reg := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	}, func(source string, from, to circuitbreaker.State) {
		seen = append(seen, transition{source, from, to})
	})

	reg.RecordFailure("acme")

	if len(seen) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(seen))
	}
	if seen[0].source != "acme" || seen[0].to != circuitbreaker.StateOpen {
		t.Errorf("unexpected transition: %+v", seen[0])
	}
}
