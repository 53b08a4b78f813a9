//go:build !linux && !darwin

package peer

// posixForkSupported is false off POSIX: the supervisor rejects fork
// spawn mode at configuration time rather than at runtime.
const posixForkSupported = false
