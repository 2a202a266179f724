package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Merge applies patch on top of existing and returns the result. Where both
// sides hold an object under the same key the merge recurses; any other patch
// value, arrays included, replaces the existing value outright. Keys present
// only in existing are kept, so a merge never removes a field. Neither input
// is modified.
func Merge(existing, patch map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(patch))
	for k, v := range existing {
		out[k] = v
	}
	for k, pv := range patch {
		pm, patchIsObject := pv.(map[string]any)
		em, existingIsObject := out[k].(map[string]any)
		if patchIsObject && existingIsObject {
			out[k] = Merge(em, pm)
			continue
		}
		out[k] = pv
	}
	return out
}

// ApplyPatch merges the JSON object patch into p and decodes the result back
// onto the typed tree. The returned error is a *MalformedDocumentError when
// the patch is not an object, holds a null anywhere, or the merged document no
// longer fits the tree. Fields cannot be removed by a patch, so a null is
// rejected rather than merged. The root objectId may not change.
func ApplyPatch(p *Plan, patch []byte) (*Plan, error) {
	patchObj, err := decodeObject(patch)
	if err != nil {
		return nil, err
	}
	if err := rejectNulls("", patchObj); err != nil {
		return nil, err
	}

	current, err := Encode(p)
	if err != nil {
		return nil, err
	}
	currentObj, err := decodeObject(current)
	if err != nil {
		return nil, err
	}

	merged, err := json.Marshal(Merge(currentObj, patchObj))
	if err != nil {
		return nil, fmt.Errorf("encoding merged plan: %w", err)
	}
	out, err := Decode(merged)
	if err != nil {
		return nil, err
	}
	if out.ObjectID != p.ObjectID {
		return nil, malformed("objectId", "root objectId %q cannot be changed to %q", p.ObjectID, out.ObjectID)
	}
	return out, nil
}

// decodeObject decodes data as a JSON object, keeping numbers exact.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, decodeError(err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, malformed("", "patch must be a JSON object")
	}
	return obj, nil
}

// rejectNulls reports the first null found in v. Object keys are visited in
// sorted order so the reported path is stable.
func rejectNulls(path string, v any) error {
	switch t := v.(type) {
	case nil:
		return malformed(path, "null is not a valid value; fields cannot be removed")
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(t)) {
			if err := rejectNulls(joinPath(path, k), t[k]); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range t {
			if err := rejectNulls(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
