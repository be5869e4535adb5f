package breaker

import "testing"

func TestRecordFailure_OpensAtThreshold(t *testing.T) {
	c := Counter{Threshold: 5}
	for i := 1; i < 5; i++ {
		c = c.RecordFailure()
		if c.State() != StateClosed {
			t.Fatalf("breaker opened after %d failures", i)
		}
	}
	c = c.RecordFailure()
	if c.State() != StateOpen {
		t.Fatalf("breaker should be open after 5 failures, got %s", c.State())
	}
	if CanAdmit(c).Allowed {
		t.Error("open breaker must not admit tasks")
	}
}

func TestRecordSuccess_ResetsCounter(t *testing.T) {
	c := Counter{Threshold: 5}
	for i := 0; i < 4; i++ {
		c = c.RecordFailure()
	}
	c = c.RecordSuccess()
	if c.ConsecutiveFailures != 0 {
		t.Fatalf("ConsecutiveFailures = %d, want 0", c.ConsecutiveFailures)
	}
	for i := 0; i < 4; i++ {
		c = c.RecordFailure()
	}
	if c.State() != StateClosed {
		t.Error("four failures after a success should not open the breaker")
	}
}

func TestRecordSuccess_DoesNotCloseOpenBreaker(t *testing.T) {
	c := Counter{Threshold: 2}
	c = c.RecordFailure().RecordFailure()
	c = c.RecordSuccess()
	if c.State() != StateOpen {
		t.Error("a success after tripping must not close the breaker")
	}
	if c.Reset().State() != StateClosed {
		t.Error("Reset should close the breaker")
	}
}

func TestCanAdmit(t *testing.T) {
	tests := []struct {
		name    string
		counter Counter
		want    bool
	}{
		{"fresh", Counter{Threshold: 5}, true},
		{"below threshold", Counter{ConsecutiveFailures: 4, Threshold: 5}, true},
		{"at threshold", Counter{ConsecutiveFailures: 5, Threshold: 5}, false},
		{"tripped after reset of count", Counter{ConsecutiveFailures: 0, Threshold: 5, Tripped: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanAdmit(tt.counter)
			if got.Allowed != tt.want {
				t.Errorf("Allowed = %v, want %v (%s)", got.Allowed, tt.want, got.Reason)
			}
			if !got.Allowed && got.Error() == nil {
				t.Error("denied guard should produce an error")
			}
		})
	}
}

func TestValidateThreshold(t *testing.T) {
	if ValidateThreshold(0) == nil {
		t.Error("threshold 0 should be rejected")
	}
	if err := ValidateThreshold(1); err != nil {
		t.Errorf("threshold 1 rejected: %v", err)
	}
}
