package theme

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var recordSchemaJSON []byte

var loadRecordSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(recordSchemaJSON))
})

// ErrInvalidRecord is wrapped by every schema validation failure.
var ErrInvalidRecord = errors.New("invalid theme record")

// ValidateRecord checks a decoded theme document (a generic map as produced
// by YAML or JSON decoding) against the record schema.
func ValidateRecord(doc any) error {
	schema, err := loadRecordSchema()
	if err != nil {
		return fmt.Errorf("loading theme schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(problems, "; "))
}
