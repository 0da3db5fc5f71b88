package postgres

import (
	"reflect"
	"slices"
	"sync"
)

// Columns maps the db-tagged fields of a row struct T to column names.
// Fields of embedded structs are included; `db:"-"` and untagged fields are
// skipped.
//
//	cols := ColumnsOf[numerator.Sequence]()
//	cols.Names()     // ["id", "code", "name", "company_id", ...]
//	cols.Values(seq) // {"id": ..., "code": "inv", ...}
type Columns[T any] struct {
	*columnsMeta
}

type columnsMeta struct {
	names []string
	index [][]int
}

// columnsCache holds reflect.Type -> *columnsMeta.
var columnsCache sync.Map

// ColumnsOf returns the column mapping of T, computed once per type.
func ColumnsOf[T any]() Columns[T] {
	t := reflect.TypeFor[T]()
	if cached, ok := columnsCache.Load(t); ok {
		return Columns[T]{cached.(*columnsMeta)}
	}
	meta, _ := columnsCache.LoadOrStore(t, buildColumns(t))
	return Columns[T]{meta.(*columnsMeta)}
}

func buildColumns(t reflect.Type) *columnsMeta {
	meta := &columnsMeta{}
	if t.Kind() != reflect.Struct {
		return meta
	}

	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("db")
		if tag == "" || tag == "-" || slices.Contains(meta.names, tag) {
			continue
		}
		meta.names = append(meta.names, tag)
		meta.index = append(meta.index, f.Index)
	}
	return meta
}

// Names returns the column names in field order.
func (c Columns[T]) Names() []string {
	return slices.Clone(c.names)
}

// Values returns column -> field value for row.
func (c Columns[T]) Values(row *T) map[string]any {
	rv := reflect.ValueOf(row).Elem()
	out := make(map[string]any, len(c.names))
	for i, name := range c.names {
		out[name] = rv.FieldByIndex(c.index[i]).Interface()
	}
	return out
}
