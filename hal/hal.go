// Package hal is the contact point between the kernel and the machine:
// a log sink and a timer interrupt source. The scheduler only ever sees
// these interfaces; host implementations live alongside them.
package hal

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// Clock is the timer interrupt source.
//
// The tick duration is platform-defined; every value received on Ticks
// corresponds to one timer interrupt. Delivery is lossy by design: a
// consumer that falls behind misses ticks instead of stalling the
// machine.
type Clock interface {
	Ticks() <-chan uint64
}
