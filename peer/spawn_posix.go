//go:build linux || darwin

package peer

// posixForkSupported marks platforms where the listen loop's fork spawn
// mode may be selected.
const posixForkSupported = true
