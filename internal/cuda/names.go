package cuda

import (
	"kernelgen/internal/diag"
	"kernelgen/internal/ir"
)

// unboundName is rendered in place of a value that never received a name.
// It is not a valid identifier, so the kernel fails to compile downstream
// instead of silently reading the wrong variable.
const unboundName = "<unbound>"

// registry maps IR values to emitted names for one generation run. A value
// is bound at most once and never renamed.
type registry struct {
	names    map[*ir.Value]string
	reporter *diag.Reporter
	failures int
}

func newRegistry(reporter *diag.Reporter) *registry {
	return &registry{
		names:    make(map[*ir.Value]string),
		reporter: reporter,
	}
}

// bind records name for v. Binding an already named value keeps the first
// name, reports the attempt and returns false.
func (r *registry) bind(v *ir.Value, name string) bool {
	if v == nil {
		r.fail("cannot bind %q to a nil value", name)
		return false
	}
	if prev, ok := r.names[v]; ok {
		r.fail("value %s already named %q, refusing %q", v, prev, name)
		return false
	}
	r.names[v] = name
	return true
}

func (r *registry) lookup(v *ir.Value) (string, bool) {
	name, ok := r.names[v]
	return name, ok
}

// nameOf returns the name bound to v, reporting and returning unboundName
// when there is none.
func (r *registry) nameOf(v *ir.Value) string {
	if name, ok := r.names[v]; ok {
		return name
	}
	r.fail("unbound value %s", v)
	return unboundName
}

func (r *registry) fail(format string, args ...any) {
	r.failures++
	r.reporter.Errorf(format, args...)
}
