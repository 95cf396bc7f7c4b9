/*
Package query provides the statement builder, condition algebra,
method-name parser and paginator.

Statements compose fluently and compile into plans adapters interpret:

	plan, err := query.From("users").
		Where(query.Attr("age").Gt(18).And(query.Attr("active").True())).
		OrderBy("age", model.Desc).
		ThenBy("name").
		Limit(10).
		Build()

Conditions are a recursive algebra over primitive operators; In and
Between stay primitive so adapters can translate them natively. Compile
walks the tree once and compiles regular expressions up front.

Trivial aggregations squash to a named adapter method (countOf, maxOf,
…) when the backend implements NamedExecutor; Prepare emits the
deterministic method name identifying a statement as a stored plan.

ParseMethod goes the other way: it parses identifiers such as

	findByAgeGreaterThanAndActiveGroupByCountryThenByCityOrderByAgeDesc

into structured plans whose conditions bind positional arguments
left-to-right in declaration order.
*/
package query
