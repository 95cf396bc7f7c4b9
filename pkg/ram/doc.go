// Package ram is the reference in-memory adapter: nested keyed maps
// with insertion-order tracking for stable sorts, a single advisory
// lock serialising mutations, and full plan interpretation including
// aggregates. It registers itself under the "ram" flavour on import.
package ram
