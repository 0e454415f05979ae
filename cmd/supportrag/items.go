package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kaptinlin/jsonschema"
	"github.com/poiesic/supportrag/core"
)

//go:embed items.schema.json
var itemsSchema []byte

// itemRecord is one entry of an ingest file.
type itemRecord struct {
	Kind     string   `json:"kind"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Status   string   `json:"status,omitempty"`
	Priority string   `json:"priority,omitempty"`
}

func compileItemsSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(itemsSchema)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// parseItems validates an ingest file against the items schema and converts
// its entries to knowledge items.
func parseItems(data []byte) ([]*core.KnowledgeItem, error) {
	schema, err := compileItemsSchema()
	if err != nil {
		return nil, err
	}
	result := schema.ValidateJSON(data)
	if !result.IsValid() {
		return nil, fmt.Errorf("schema validation failed: %v", result.Errors)
	}

	var records []itemRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}

	items := make([]*core.KnowledgeItem, 0, len(records))
	for _, rec := range records {
		kind, err := core.ParseSourceKind(rec.Kind)
		if err != nil {
			return nil, err
		}
		items = append(items, &core.KnowledgeItem{
			Kind:     kind,
			Title:    rec.Title,
			Body:     rec.Body,
			Category: rec.Category,
			Tags:     rec.Tags,
			Status:   rec.Status,
			Priority: rec.Priority,
		})
	}
	return items, nil
}

// readInput reads path, or stdin when path is "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
