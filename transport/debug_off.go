//go:build !quicdebug

package transport

// debug is a no-op unless built with the quicdebug tag, so the hot
// packet-processing path pays nothing for trace logging in production
// builds.
func debug(format string, args ...interface{}) {}
