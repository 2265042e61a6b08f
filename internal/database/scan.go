package database

import (
	"database/sql"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// structToInsert extracts column names, placeholders and values from a struct
// using `db:` tags. Fields tagged db:"-" and a zero "id" are skipped.
func structToInsert(record any) (cols, placeholders []string, vals []any) {
	v := reflect.Indirect(reflect.ValueOf(record))
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		if tag == "id" && v.Field(i).IsZero() {
			continue
		}
		cols = append(cols, tag)
		placeholders = append(placeholders, "?")
		vals = append(vals, v.Field(i).Interface())
	}
	return
}

// structToUpdate extracts column/value pairs, excluding id.
func structToUpdate(record any) (cols []string, vals []any) {
	v := reflect.Indirect(reflect.ValueOf(record))
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" || tag == "id" {
			continue
		}
		cols = append(cols, tag)
		vals = append(vals, v.Field(i).Interface())
	}
	return
}

// updateClause builds "a = ?, b = ?" for an UPDATE statement.
func updateClause(cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	return strings.Join(sets, ", ")
}

// nonConflictCols returns cols minus the conflict target.
func nonConflictCols(cols, conflictCols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !slices.Contains(conflictCols, c) {
			out = append(out, c)
		}
	}
	return out
}

// scanRows scans sql.Rows into a slice of structs using `db:` tags.
func scanRows(rows *sql.Rows, dest any) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("select: dest must be a pointer to a slice")
	}
	sliceVal := dv.Elem()
	elemType := sliceVal.Type().Elem()
	isPtr := elemType.Kind() == reflect.Ptr
	if isPtr {
		elemType = elemType.Elem()
	}

	for rows.Next() {
		elem := reflect.New(elemType).Elem()
		if err := rows.Scan(fieldPointers(elem, cols)...); err != nil {
			return err
		}
		if isPtr {
			sliceVal.Set(reflect.Append(sliceVal, elem.Addr()))
		} else {
			sliceVal.Set(reflect.Append(sliceVal, elem))
		}
	}
	return rows.Err()
}

// scanOne scans the first row into dest (a struct pointer, or a pointer to a
// scalar for single-column queries). It returns sql.ErrNoRows when empty.
func scanOne(rows *sql.Rows, dest any) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}

	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr {
		return fmt.Errorf("get: dest must be a pointer")
	}
	elem := dv.Elem()
	if elem.Kind() != reflect.Struct {
		return rows.Scan(dest)
	}
	return rows.Scan(fieldPointers(elem, cols)...)
}

// fieldPointers maps column names to struct field pointers via `db:` tags.
// Unknown columns are discarded.
func fieldPointers(elem reflect.Value, cols []string) []any {
	tagMap := map[string]any{}
	t := elem.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag != "" && tag != "-" {
			tagMap[tag] = elem.Field(i).Addr().Interface()
		}
	}
	ptrs := make([]any, len(cols))
	for i, c := range cols {
		if p, ok := tagMap[c]; ok {
			ptrs[i] = p
		} else {
			var discard any
			ptrs[i] = &discard
		}
	}
	return ptrs
}
