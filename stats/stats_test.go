package stats

import (
	"strings"
	"testing"
)

func TestCounterIncAddGet(t *testing.T) {
	var c Counter_t
	c.Inc()
	c.Add(41)
	if got := c.Get(); got != 42 {
		t.Fatalf("Get() = %d, want 42", got)
	}
}

func TestRecordIrqBumpsVectorAndTotal(t *testing.T) {
	var before, beforeTotal int64
	before = Nirqs[5].Get()
	beforeTotal = Irqs.Get()

	RecordIrq(5)

	if got := Nirqs[5].Get(); got != before+1 {
		t.Fatalf("Nirqs[5] = %d, want %d", got, before+1)
	}
	if got := Irqs.Get(); got != beforeTotal+1 {
		t.Fatalf("Irqs = %d, want %d", got, beforeTotal+1)
	}
}

func TestRecordIrqIgnoresOutOfRangeVector(t *testing.T) {
	beforeTotal := Irqs.Get()
	RecordIrq(-1)
	RecordIrq(len(Nirqs))
	if got := Irqs.Get(); got != beforeTotal+2 {
		t.Fatalf("Irqs = %d, want %d (out-of-range vectors still count toward the total)", got, beforeTotal+2)
	}
}

func TestStats2StringRendersOnlyCounterFields(t *testing.T) {
	type demo struct {
		Hits   Counter_t
		Misses Counter_t
		Name   string
	}
	var d demo
	d.Hits.Add(3)
	d.Misses.Add(7)
	d.Name = "ignored"

	s := Stats2String(&d)
	if !strings.Contains(s, "Hits: 3") {
		t.Fatalf("expected Hits: 3 in %q", s)
	}
	if !strings.Contains(s, "Misses: 7") {
		t.Fatalf("expected Misses: 7 in %q", s)
	}
	if strings.Contains(s, "Name") {
		t.Fatalf("non-Counter_t field leaked into output: %q", s)
	}
}

func TestStats2StringAcceptsValueOrPointer(t *testing.T) {
	type demo struct{ N Counter_t }
	d := demo{}
	d.N.Inc()

	byVal := Stats2String(d)
	byPtr := Stats2String(&d)
	if byVal != byPtr {
		t.Fatalf("Stats2String(value) = %q, Stats2String(pointer) = %q, want equal", byVal, byPtr)
	}
}
