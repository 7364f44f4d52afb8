package resolve

import (
	"fmt"
	"strings"
)

// ReferenceError reports a ref or include that does not resolve to a known
// suite or test case. Chain holds the container path leading to the
// reference site.
type ReferenceError struct {
	Ref   string
	Chain []string
}

func (e *ReferenceError) Error() string {
	if len(e.Chain) == 0 {
		return fmt.Sprintf("unresolved reference %q", e.Ref)
	}
	return fmt.Sprintf("unresolved reference %q (via %s)", e.Ref, strings.Join(e.Chain, " -> "))
}

// CircularIncludeError reports an include cycle. Cycle lists the suite
// names along the cycle, ending with the repeated suite.
type CircularIncludeError struct {
	Cycle []string
}

func (e *CircularIncludeError) Error() string {
	return fmt.Sprintf("circular include: %s", strings.Join(e.Cycle, " -> "))
}
