package main

import (
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-odata-sql/internal/engine"
	"github.com/nlstn/go-odata-sql/internal/engine/memengine"
	"github.com/nlstn/go-odata-sql/internal/schema"
)

// demoEngine returns an in-memory engine with a small product catalog.
func demoEngine() (*memengine.Engine, error) {
	eng := memengine.New()

	products := schema.Schema{
		Fields: []schema.Field{
			{Name: "ID", Type: schema.DataType{Kind: schema.Int64}},
			{Name: "Name", Type: schema.DataType{Kind: schema.Utf8}},
			{Name: "Description", Type: schema.DataType{Kind: schema.Utf8}, Nullable: true},
			{Name: "Price", Type: schema.DataType{Kind: schema.Decimal, Precision: 10, Scale: 2}},
			{Name: "Category", Type: schema.DataType{Kind: schema.Utf8}},
		},
		PrimaryKey: []string{"ID"},
	}
	err := eng.CreateTable("Products", products,
		engine.Row{int64(1), "Laptop", "High-performance laptop for productivity and gaming", decimal.RequireFromString("999.99"), "Electronics"},
		engine.Row{int64(2), "Wireless Mouse", "Ergonomic wireless mouse with precision tracking", decimal.RequireFromString("29.99"), "Electronics"},
		engine.Row{int64(3), "Coffee Mug", "Ceramic coffee mug with heat retention technology", decimal.RequireFromString("15.50"), "Kitchen"},
		engine.Row{int64(4), "Office Chair", "Ergonomic office chair with lumbar support", decimal.RequireFromString("249.99"), "Furniture"},
		engine.Row{int64(5), "Smartphone", nil, decimal.RequireFromString("799.99"), "Electronics"},
	)
	if err != nil {
		return nil, err
	}

	descriptions := schema.Schema{
		Fields: []schema.Field{
			{Name: "ProductID", Type: schema.DataType{Kind: schema.Int64}},
			{Name: "LanguageKey", Type: schema.DataType{Kind: schema.Utf8}},
			{Name: "Text", Type: schema.DataType{Kind: schema.Utf8}},
		},
		PrimaryKey: []string{"ProductID", "LanguageKey"},
	}
	err = eng.CreateTable("ProductDescriptions", descriptions,
		engine.Row{int64(1), "EN", "Laptop"},
		engine.Row{int64(1), "DE", "Laptop"},
		engine.Row{int64(2), "EN", "Wireless mouse"},
		engine.Row{int64(2), "DE", "Kabellose Maus"},
		engine.Row{int64(3), "EN", "Coffee mug"},
		engine.Row{int64(3), "DE", "Kaffeebecher"},
	)
	if err != nil {
		return nil, err
	}
	return eng, nil
}
