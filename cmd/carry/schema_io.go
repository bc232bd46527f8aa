package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/carrysync/carry/pkg/schema"
)

// loadSchema reads a collection schema definition from a JSON file, the
// same wire shape schema.Schema marshals to.
func loadSchema(path string) (schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.Schema{}, fmt.Errorf("read schema file: %w", err)
	}
	var s schema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return schema.Schema{}, fmt.Errorf("parse schema file: %w", err)
	}
	return s, nil
}

// collectionNames returns the sorted collection names declared in s, used
// to scope the metrics collector and snapshot buckets.
func collectionNames(s schema.Schema) []string {
	names := make([]string, 0, len(s.Collections))
	for name := range s.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
