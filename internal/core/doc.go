// Package core provides the business logic for bulk workbook imports.
//
// This package contains all domain logic independent of any transport layer.
// It is used by the web handlers, but also by tests directly through
// [Service] without an HTTP server in front of it.
//
// # Pipeline
//
// An import moves through a fixed sequence of stages:
//
//	upload -> parse -> validate -> session -> (autocorrect | select)* -> commit -> result
//
//   - [WorkbookParser] decodes an .xlsx workbook into one [Sheet] per entity type.
//   - [Validator] runs the [RuleSet] registered for every (entity type, field)
//     pair and records severity-graded [ErrorEntry] findings on each [Row].
//   - [AutoCorrector] applies the first suggestion of ERROR and WARNING cells
//     and re-validates the whole workbook so reference findings stay current.
//   - [SessionStore] holds the validated workbook and the user's selection
//     between requests. Sessions expire after a TTL.
//   - [Graph] orders entity types so referenced records are written before
//     the records that reference them.
//   - [Executor] writes the selected, importable rows through a [Persister]
//     and aggregates per-row outcomes into an [ImportResult].
//
// # Entity Catalog
//
// Entity types are registered at init time using [Register]. Each
// [EntityDefinition] lists its fields, its key field, and the entity types it
// depends on. Format rules are derived from the field specs on registration;
// additional rules can be attached with [Catalog.AddRule]:
//
//	core.Register(core.EntityDefinition{
//	    Type:        "DEPARTMENT",
//	    DisplayName: "Department",
//	    IDPrefix:    "Department",
//	    Fields: []core.FieldSpec{
//	        {Name: "ID", Type: core.FieldID, Required: true},
//	        {Name: "Name", Type: core.FieldText, Required: true},
//	    },
//	})
//
// # Severity
//
// ERROR findings with Blocking set prevent a row from being imported. WARNING
// findings leave the row importable and are repeated in the commit result.
// INFO findings are advisory. A row's CanImport is true iff it carries no
// blocking finding, and the executor re-checks it at commit time.
//
// # Partial Commit
//
// Commit is not transactional across rows. Each row is written on its own;
// CommitRequest.ContinueOnError decides whether a failure stops the run.
// Rows written before a failure stay written.
package core
