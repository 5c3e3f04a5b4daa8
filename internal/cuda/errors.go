package cuda

import "errors"

var (
	// ErrUnsupported marks constructs the generator refuses to lower: an
	// unknown node or affine expression kind, a shuffle mode or compare
	// predicate without a kernel spelling, or a vector width that does not
	// fill whole 32-bit lanes.
	ErrUnsupported = errors.New("unsupported construct")

	// ErrStructure marks IR that violates the kernel layout the generator
	// relies on, e.g. a grid boundary that does not hold exactly one block
	// boundary or an access map whose arity differs from the memref rank.
	ErrStructure = errors.New("malformed kernel structure")

	// ErrNaming is returned in strict mode when a value was bound twice or
	// referenced without a name.
	ErrNaming = errors.New("value naming failed")
)
