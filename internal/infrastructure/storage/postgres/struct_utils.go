package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns returns the column names from T's "db" tags in field order.
// Embedded structs are flattened.
//
// Usage:
//
//	columns := ExtractDBColumns[inventory.TransactionItem]()
//	// Returns: ["id", "transaction_id", "item_id", "batch_id", ...]
func ExtractDBColumns[T any]() []string {
	var zero T
	meta := getOrCreateTypeMetadata(reflect.TypeOf(zero))
	return meta.columns()
}

// fieldInfo contains pre-computed metadata about a struct field.
type fieldInfo struct {
	index    int
	dbTag    string
	embedded *typeMetadata
}

// typeMetadata contains cached reflection metadata for a type.
type typeMetadata struct {
	fields []fieldInfo
}

func (m *typeMetadata) columns() []string {
	var cols []string
	for _, f := range m.fields {
		if f.embedded != nil {
			cols = append(cols, f.embedded.columns()...)
			continue
		}
		cols = append(cols, f.dbTag)
	}
	return cols
}

// typeCache maps reflect.Type to *typeMetadata.
var typeCache sync.Map

// getOrCreateTypeMetadata returns cached metadata or creates it if not exists.
func getOrCreateTypeMetadata(t reflect.Type) *typeMetadata {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{}
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)

			if field.Anonymous {
				meta.fields = append(meta.fields, fieldInfo{
					index:    i,
					embedded: getOrCreateTypeMetadata(field.Type),
				})
				continue
			}

			tag := field.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			meta.fields = append(meta.fields, fieldInfo{index: i, dbTag: tag})
		}
	}

	typeCache.Store(t, meta)
	return meta
}

// StructToMap converts a struct to a map keyed by "db" tags.
// Fields without a tag or tagged "-" are skipped.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := getOrCreateTypeMetadata(rv.Type())
	res := make(map[string]any, len(meta.fields))
	fillMap(res, rv, meta)
	return res
}

func fillMap(res map[string]any, rv reflect.Value, meta *typeMetadata) {
	for _, f := range meta.fields {
		fv := rv.Field(f.index)
		if f.embedded != nil {
			if fv.Kind() == reflect.Ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			fillMap(res, fv, f.embedded)
			continue
		}
		res[f.dbTag] = fv.Interface()
	}
}
