// Package sequence implements monotonic id generators persisted as
// entities. Allocation is serialised per sequence name; Range hands
// out arithmetic progressions atomically and serial-kind sequences
// format ids as zero-padded 14-digit strings.
package sequence
