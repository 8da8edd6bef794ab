/*
Package hydrate loads a tree of related records with a single joined query.

gorm preloading loads each relationship with a separate query, one per level, using WHERE IN (...primary keys).
With deep hierarchies of thousands of items those queries can perform poorly. hydrate instead runs one query joining
every table that should be loaded and rebuilds the rows, which repeat parent columns once per matching child, into a
deduplicated forest of records.

The entities taking part in a query are described by a tree of RelationNodes, built from gorm models with LoadModel
or from a YAML catalogue with ParseSchema. Loading happens in three steps:

  - ResolveJoins matches every table of the query's FROM and JOIN clauses to a relation of the tree.
  - BuildColumnPlan lays out the columns to select for the matched aliases.
  - Hydrate, or a streaming Hydrator, turns the selected rows into Records.

Query wires the three steps to a gorm connection and decodes the records into model structs. MultiQuery runs several
independent Queries concurrently.
*/
package hydrate
