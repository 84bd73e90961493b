package transport

import "fmt"

// sprint concatenates its arguments the way fmt.Sprint does; used for
// building one-off error and debug messages without a format string.
func sprint(args ...interface{}) string {
	return fmt.Sprint(args...)
}
