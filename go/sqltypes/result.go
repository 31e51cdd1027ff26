/*
Copyright 2019 The Vitess Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sqltypes

// Field describes one column of a Result.
type Field struct {
	Name string
	Type Type
}

// Result represents a query result.
type Result struct {
	Fields       []*Field
	RowsAffected uint64
	InsertID     uint64
	Rows         [][]Value
}

// Copy creates a deep copy of Result.
func (result *Result) Copy() *Result {
	out := &Result{
		InsertID:     result.InsertID,
		RowsAffected: result.RowsAffected,
	}
	if result.Fields != nil {
		out.Fields = make([]*Field, len(result.Fields))
		for i, f := range result.Fields {
			fc := *f
			out.Fields[i] = &fc
		}
	}
	if result.Rows != nil {
		out.Rows = make([][]Value, 0, len(result.Rows))
		for _, r := range result.Rows {
			out.Rows = append(out.Rows, append([]Value(nil), r...))
		}
	}
	return out
}

// Equal compares the Result with another one.
func (result *Result) Equal(other *Result) bool {
	if result == nil || other == nil {
		return result == other
	}
	if result.RowsAffected != other.RowsAffected || result.InsertID != other.InsertID {
		return false
	}
	if len(result.Fields) != len(other.Fields) || len(result.Rows) != len(other.Rows) {
		return false
	}
	for i, f := range result.Fields {
		if *f != *other.Fields[i] {
			return false
		}
	}
	for i, row := range result.Rows {
		if len(row) != len(other.Rows[i]) {
			return false
		}
		for j, v := range row {
			if !v.Equal(other.Rows[i][j]) {
				return false
			}
		}
	}
	return true
}

// AppendResult will combine the Results Objects of one result
// to another result. Note currently it doesn't handle cases like
// if two results have different fields. We will enhance this function.
func (result *Result) AppendResult(src *Result) {
	if src.RowsAffected == 0 && len(src.Rows) == 0 && len(src.Fields) == 0 {
		return
	}
	if result.Fields == nil {
		result.Fields = src.Fields
	}
	result.RowsAffected += src.RowsAffected
	if src.InsertID != 0 {
		result.InsertID = src.InsertID
	}
	result.Rows = append(result.Rows, src.Rows...)
}
