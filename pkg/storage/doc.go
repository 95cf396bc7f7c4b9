// Package storage provides the BoltDB-backed adapter: one bucket per
// table, records serialized as JSON, registered under the "bolt"
// flavour. BoltDB's single-writer transaction model supplies the write
// serialisation the in-memory adapter gets from its advisory lock.
package storage
