package core

import "context"

// Persister is the downstream store the executor writes rows to.
//
// Implementations must return ErrRecordExists from Insert when the id is
// taken and ErrRecordNotFound from Update and Delete when it is missing,
// wrapped or not, so the executor can apply the conflict policy.
type Persister interface {
	Exists(ctx context.Context, entity EntityType, id string) (bool, error)
	Insert(ctx context.Context, rec Record) error
	Update(ctx context.Context, rec Record) error
	Delete(ctx context.Context, entity EntityType, id string) error
}

// buildRecord converts a validated row into a Record. The operation column
// is dropped and empty cells are omitted.
func buildRecord(def *EntityDefinition, row *Row) Record {
	rec := Record{
		EntityType: def.Type,
		ID:         row.Value(def.KeyField),
		Fields:     make(map[string]any, len(def.Fields)),
	}
	for _, f := range def.Fields {
		if f.Type == FieldOperation {
			continue
		}
		if v := typedValue(f, row.CellValues[f.Name]); v != nil {
			rec.Fields[f.Name] = v
		}
	}
	return rec
}
