// Package patch interprets JSON Patch documents against flat, schema-constrained
// records. Every operation runs on a working copy; the caller's record is only
// replaced once the whole document has applied and the result decodes cleanly.
package patch

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/FACorreiaa/cityinfo-api/internal/types"
)

// OpKind is the tag of a patch instruction.
type OpKind string

const (
	OpAdd     OpKind = "add"
	OpRemove  OpKind = "remove"
	OpReplace OpKind = "replace"
	OpMove    OpKind = "move"
	OpCopy    OpKind = "copy"
	OpTest    OpKind = "test"
)

// Operation is a single RFC 6902 instruction.
type Operation struct {
	Op    OpKind          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Document is an ordered list of operations.
type Document []Operation

//go:embed schema/json-patch.json
var documentSchemaSource string

var documentSchema = jsonschema.MustCompileString("json-patch.json", documentSchemaSource)

// Decode parses a request body into a Document after checking it against the
// JSON Patch schema. Shape errors are reported as *types.ValidationError.
func Decode(body []byte) (Document, error) {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, types.NewValidationError("patchDocument", fmt.Sprintf("malformed JSON: %v", err))
	}

	if err := documentSchema.Validate(instance); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, schemaValidationError(verr)
		}
		return nil, types.NewValidationError("patchDocument", err.Error())
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, types.NewValidationError("patchDocument", err.Error())
	}
	return doc, nil
}

func schemaValidationError(verr *jsonschema.ValidationError) *types.ValidationError {
	out := &types.ValidationError{}
	for _, unit := range verr.BasicOutput().Errors {
		// the root entry only summarises its causes
		if unit.InstanceLocation == "" {
			continue
		}
		out.Add(unit.InstanceLocation, unit.Error)
	}
	if len(out.Fields) == 0 {
		out.Add("patchDocument", verr.Error())
	}
	return out
}
