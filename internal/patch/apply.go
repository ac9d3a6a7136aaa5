package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/FACorreiaa/cityinfo-api/internal/types"
)

var (
	pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
	pointerEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
)

// Apply runs doc against target in order. The fields of T define the set of
// valid paths, so T must encode every field (no omitempty). On any failure the
// target is left exactly as it was and a *types.ValidationError is returned.
func Apply[T any](doc Document, target *T) error {
	original, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("failed to project patch target: %w", err)
	}
	fields, err := fieldIndex(original)
	if err != nil {
		return err
	}

	normalized := make(Document, len(doc))
	for i, op := range doc {
		if normalized[i], err = fields.normalize(op); err != nil {
			return types.NewValidationError(fmt.Sprintf("patchDocument[%d]", i), err.Error())
		}
	}

	encodedPatch, err := json.Marshal(normalized)
	if err != nil {
		return types.NewValidationError("patchDocument", err.Error())
	}
	p, err := jsonpatch.DecodePatch(encodedPatch)
	if err != nil {
		return types.NewValidationError("patchDocument", err.Error())
	}
	patched, err := p.Apply(original)
	if err != nil {
		return types.NewValidationError("patchDocument", err.Error())
	}

	var result T
	dec := json.NewDecoder(bytes.NewReader(patched))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&result); err != nil {
		return types.NewValidationError("patchDocument", fmt.Sprintf("patched value has the wrong type: %v", err))
	}

	*target = result
	return nil
}

// index maps a lower-cased field name to its canonical key, so "/Name"
// resolves like "/name".
type index map[string]string

func fieldIndex(encoded []byte) (index, error) {
	var values map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &values); err != nil {
		return nil, fmt.Errorf("patch target must be a JSON object: %w", err)
	}
	idx := make(index, len(values))
	for k := range values {
		idx[strings.ToLower(k)] = k
	}
	return idx, nil
}

// normalize rewrites the pointers of op onto canonical field keys. Only
// single-segment pointers naming a known field are accepted.
func (idx index) normalize(op Operation) (Operation, error) {
	switch op.Op {
	case OpAdd, OpReplace, OpTest:
		if op.Value == nil {
			return op, fmt.Errorf("%s operation at '%s' requires a value", op.Op, op.Path)
		}
	case OpRemove:
	case OpMove, OpCopy:
		from, err := idx.resolve(op.From)
		if err != nil {
			return op, err
		}
		op.From = from
	default:
		return op, fmt.Errorf("unsupported operation '%s'", op.Op)
	}

	path, err := idx.resolve(op.Path)
	if err != nil {
		return op, err
	}
	op.Path = path
	return op, nil
}

func (idx index) resolve(pointer string) (string, error) {
	if !strings.HasPrefix(pointer, "/") {
		return "", fmt.Errorf("the path '%s' is not a valid JSON pointer", pointer)
	}
	segment := pointer[1:]
	if strings.Contains(segment, "/") {
		return "", fmt.Errorf("the path '%s' does not address a field of the resource", pointer)
	}
	segment = pointerUnescaper.Replace(segment)

	key, ok := idx[strings.ToLower(segment)]
	if !ok {
		return "", fmt.Errorf("the target location specified by path segment '%s' was not found", segment)
	}
	return "/" + pointerEscaper.Replace(key), nil
}
