package procfs

import (
	"bytes"

	"github.com/google/pprof/profile"

	"oops/stats"
	"oops/vfs"
)

// newProf backs the "prof" entry (spec.md §4.5's D_PROF device), built
// from stats.go's own doc comment calling for exactly this: "procfs's
// D_PROF device ... serialises them through github.com/google/pprof/
// profile instead of the teacher's reflect-based Stats2String dump".
// There is no original_source file to port from — stats counters have no
// analogue there — so the mapping from Counter_t to profile.Sample is
// this port's own: one Sample per nonzero interrupt vector, with the
// vector number folded into the Function name the way a real profiler
// folds a call site into a Location/Function pair.
func newProf(fsid vfs.FsId) *contentFile {
	return newContentFile(fsid, procIno(3), func() []byte {
		var buf bytes.Buffer
		if err := buildProfile().Write(&buf); err != nil {
			return nil
		}
		return buf.Bytes()
	})
}

func buildProfile() *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "count", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "irq", Unit: "count"},
		Period:     1,
	}

	var nextID uint64 = 1
	addVector := func(name string, value int64) {
		fn := &profile.Function{ID: nextID, Name: name, SystemName: name}
		loc := &profile.Location{ID: nextID, Line: []profile.Line{{Function: fn}}}
		nextID++
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{value},
		})
	}

	for vec, c := range stats.Nirqs {
		if n := c.Get(); n != 0 {
			addVector(irqName(vec), n)
		}
	}
	addVector("irq_total", stats.Irqs.Get())

	return p
}

func irqName(vec int) string {
	const hex = "0123456789abcdef"
	return "irq" + string([]byte{hex[(vec>>4)&0xf], hex[vec&0xf]})
}
