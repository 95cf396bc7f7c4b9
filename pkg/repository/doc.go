/*
Package repository provides the per-entity facade over storage adapters.

A Repository binds one registered entity type to the adapter its metadata
selects, and wraps the adapter's CRUD primitives with the framework's
higher-level semantics: operation guards, server-populated fields,
metadata-bound field hooks, relation cascades, observer notification and
all-or-nothing bulk operations.

# Architecture

	┌──────────────────── REPOSITORY ──────────────────────┐
	│                                                       │
	│  Repository[T]  — typed public API                    │
	│       │                                               │
	│  ┌────▼─────────────────────────────────┐             │
	│  │ core — untyped engine                │             │
	│  │  - operation guard (blocked set)     │             │
	│  │  - per-call OpContext (uuid, user)   │             │
	│  │  - hooks: createdAt/By, updatedAt/By,│             │
	│  │    version, then metadata handlers   │             │
	│  │  - cascades + junction reconcile     │             │
	│  │  - observer dispatch (async, logged) │             │
	│  └────┬─────────────────────────────────┘             │
	│       │                                               │
	│  adapter.Adapter — storage engine by flavour          │
	└───────────────────────────────────────────────────────┘

The untyped core exists so relation cascades can cross entity types:
creating an entity whose relation field holds another entity recursively
creates the target through the target's own engine.

# Usage

	model.Describe[User]().Table("users").PK("ID", model.PKNumber).MustRegister()

	repo, err := repository.New[User]()
	created, err := repo.Create(ctx, &User{ID: 1, Name: "ada"})
	found, err := repo.ListBy(ctx, "findByNameEqualsOrderByAgeDesc", "ada")

Configuration overrides share the storage handle:

	asAdmin, err := repo.With(repository.Config{User: "admin"})

# Bulk semantics

CreateAll/UpdateAll/DeleteAll apply items sequentially. On the first
failure, already-applied items are rolled back best-effort via inverse
operations, newest first; rollback failures are logged and the original
error is surfaced.

# Observers

Observers receive (table, operation, ids, payload, context) after each
successful mutation. Dispatch is fire-and-forget: each observer is
awaited up to a short timeout on its own goroutine, and errors are
logged, never surfaced to the mutating caller.
*/
package repository
