package table

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/XSpiritWizardX/product-scraper/internal/model"
)

func TestFirstRecordFixesColumnOrder(t *testing.T) {
	a := NewAccumulator()
	a.Append("products", []model.Field{
		{Name: "URL", Value: "https://example.com/p/1"},
		{Name: "PageTitle", Value: "Knife"},
		{Name: "Price", Value: "12.00"},
	})

	columns, rows := a.Flush("products")
	assert.Equal(t, []string{"URL", "PageTitle", "Price"}, columns)
	assert.Equal(t, [][]string{{"https://example.com/p/1", "Knife", "12.00"}}, rows)
}

func TestNovelFieldsExtendSchemaAtTheEnd(t *testing.T) {
	a := NewAccumulator()
	a.Append("products", []model.Field{
		{Name: "URL", Value: "u1"},
		{Name: "PageTitle", Value: "t1"},
	})
	a.Append("products", []model.Field{
		{Name: "URL", Value: "u2"},
		{Name: "Material", Value: "steel"},
		{Name: "PageTitle", Value: "t2"},
	})

	columns, rows := a.Flush("products")
	assert.Equal(t, []string{"URL", "PageTitle", "Material"}, columns,
		"existing columns keep their position, new ones trail")
	assert.Equal(t, [][]string{
		{"u1", "t1", ""},
		{"u2", "t2", "steel"},
	}, rows)
}

func TestMissingValuesFlushEmpty(t *testing.T) {
	a := NewAccumulator()
	a.Append("blogs", []model.Field{
		{Name: "URL", Value: "u1"},
		{Name: "Author", Value: "anna"},
	})
	a.Append("blogs", []model.Field{
		{Name: "URL", Value: "u2"},
	})

	_, rows := a.Flush("blogs")
	assert.Equal(t, [][]string{
		{"u1", "anna"},
		{"u2", ""},
	}, rows)
}

func TestTablesInFirstAppendedOrder(t *testing.T) {
	a := NewAccumulator()
	a.Append("blogs", []model.Field{{Name: "URL", Value: "u1"}})
	a.Append("products", []model.Field{{Name: "URL", Value: "u2"}})
	a.Append("blogs", []model.Field{{Name: "URL", Value: "u3"}})

	assert.Equal(t, []string{"blogs", "products"}, a.Tables())
	assert.Equal(t, 2, a.Len("blogs"))
	assert.Equal(t, 1, a.Len("products"))
}

func TestFlushUnknownTableIsEmpty(t *testing.T) {
	a := NewAccumulator()
	columns, rows := a.Flush("never-seen")
	assert.Empty(t, columns)
	assert.Empty(t, rows)
	assert.Zero(t, a.Len("never-seen"))
}
