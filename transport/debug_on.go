//go:build quicdebug

package transport

import "log"

func debug(format string, args ...interface{}) {
	log.Printf(format, args...)
}
