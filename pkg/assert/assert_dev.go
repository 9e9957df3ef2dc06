//go:build !release

// Package assert checks internal invariants in development and test builds.
package assert

import "github.com/rotisserie/eris"

// That panics with an eris error carrying the formatted message and a stack trace when cond is
// false. Checks are compiled out of release builds, so never rely on That for control flow.
func That(cond bool, format string, args ...any) { //nolint:goprintffuncname // it's ok
	if !cond {
		panic(eris.Errorf("invariant violated: "+format, args...))
	}
}
