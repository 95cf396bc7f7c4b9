/*
Package model carries declarative entity metadata from user code to the
runtime.

Entities register through an explicit builder keyed by type identity:

	model.Describe[User]().
		Table("users").
		PK("ID", model.PKNumber).
		Index("by_email", []string{"email"}, nil).
		ManyToMany("Groups", Group{}, model.Cascade{OnDelete: model.CascadeAll}, false).
		MustRegister()

The registry is process-wide. Registration derives the persisted column
set from exported struct fields when none is declared, sorts field
hooks into a stable (priority, groupPriority) total order, rejects
bidirectional populate, and synthesises the junction entity backing
each many-to-many relation: a deterministic table name from both sides
(sorted), two FK columns and a composite unique key.
*/
package model
