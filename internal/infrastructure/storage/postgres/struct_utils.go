package postgres

import (
	"reflect"
	"sync"
)

// dbField is a column mapped to a (possibly nested) struct field.
type dbField struct {
	column string
	index  []int
}

var fieldCache sync.Map // map[reflect.Type][]dbField

// fieldsOf returns the db-tagged fields of t, flattening embedded structs
// such as entity.Catalog and item.StockCache. Results are cached per type.
func fieldsOf(t reflect.Type) []dbField {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]dbField)
	}

	var fields []dbField
	if t.Kind() == reflect.Struct {
		collectFields(t, nil, &fields)
	}
	fieldCache.Store(t, fields)
	return fields
}

func collectFields(t reflect.Type, parent []int, out *[]dbField) {
	for i := range t.NumField() {
		f := t.Field(i)
		index := append(append([]int(nil), parent...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			collectFields(f.Type, index, out)
			continue
		}

		tag := f.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		*out = append(*out, dbField{column: tag, index: index})
	}
}

// ExtractDBColumns returns the column names of T's "db" tags in field order.
func ExtractDBColumns[T any]() []string {
	fields := fieldsOf(reflect.TypeFor[T]())
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.column
	}
	return cols
}

// StructToMap converts a struct (or pointer to one) to column -> value.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	fields := fieldsOf(rv.Type())
	res := make(map[string]any, len(fields))
	for _, f := range fields {
		res[f.column] = rv.FieldByIndex(f.index).Interface()
	}
	return res
}
