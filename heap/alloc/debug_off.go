//go:build !heapdebug

package alloc

// debugChecks runs the consistency checker after every mutating call.
// Build with -tags heapdebug to enable it.
const debugChecks = false
