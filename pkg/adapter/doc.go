/*
Package adapter defines the storage engine contract and the process-wide
flavour registry.

An adapter implements CRUD primitives over column-keyed records, raw
plan execution, error normalisation and paginator construction.
Adapters register under a flavour string; entity metadata selects a
flavour and the repository factory resolves the instance, falling back
to the current default.

The package also carries the behaviour every adapter shares: Prepare
and Revert translate between model structs and stored records via
registered metadata, Flags stamps each operation with a fresh UUID, and
Base provides sequence allocation persisted through the adapter's own
storage.
*/
package adapter
