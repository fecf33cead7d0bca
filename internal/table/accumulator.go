package table

import "github.com/XSpiritWizardX/product-scraper/internal/model"

// Accumulator builds one in-memory table per name (content type or asset
// inventory). The first record of a name fixes the initial column order;
// later records with novel fields extend the schema with trailing columns,
// never rewriting earlier ones. Rows missing a column flush as empty.
type Accumulator struct {
	order   []string
	columns map[string][]string
	colSet  map[string]map[string]struct{}
	rows    map[string][]map[string]string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		columns: make(map[string][]string),
		colSet:  make(map[string]map[string]struct{}),
		rows:    make(map[string][]map[string]string),
	}
}

// Append adds one record to the named table, extending the column set with
// any fields not seen before (append-only, first-seen order).
func (a *Accumulator) Append(name string, fields []model.Field) {
	set, ok := a.colSet[name]
	if !ok {
		set = make(map[string]struct{})
		a.colSet[name] = set
		a.order = append(a.order, name)
	}
	row := make(map[string]string, len(fields))
	for _, f := range fields {
		if _, known := set[f.Name]; !known {
			set[f.Name] = struct{}{}
			a.columns[name] = append(a.columns[name], f.Name)
		}
		row[f.Name] = f.Value
	}
	a.rows[name] = append(a.rows[name], row)
}

// Tables returns the table names in first-appended order. Only tables that
// received at least one record appear.
func (a *Accumulator) Tables() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

func (a *Accumulator) Len(name string) int { return len(a.rows[name]) }

// Flush projects every row of the named table onto its final column set.
// Every row has a value (possibly empty) for every column.
func (a *Accumulator) Flush(name string) (columns []string, rows [][]string) {
	columns = append(columns, a.columns[name]...)
	for _, row := range a.rows[name] {
		out := make([]string, len(columns))
		for i, col := range columns {
			out[i] = row[col]
		}
		rows = append(rows, out)
	}
	return columns, rows
}
