package main

import (
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// patchableTextPath is the only document path a PATCH may touch.
const patchableTextPath = "/text"

func decodePatch(body []byte) (jsonpatch.Patch, *requestError) {
	patch, err := jsonpatch.DecodePatch(body)
	if err != nil {
		return nil, badRequest("invalid patch document: %v", err)
	}
	return patch, nil
}

func patchHasOperations(patch jsonpatch.Patch) check {
	return func() *requestError {
		if len(patch) == 0 {
			return badRequest("No operation was found in the patch object.")
		}
		return nil
	}
}

// patchOnlyReplacesText rejects any operation other than a replace of the
// text field. Paths are compared case-insensitively.
func patchOnlyReplacesText(patch jsonpatch.Patch) check {
	return func() *requestError {
		for _, op := range patch {
			path, err := op.Path()
			if err != nil || op.Kind() != "replace" || !strings.EqualFold(path, patchableTextPath) {
				return forbidden("Only replace operations on the \"text\" field are allowed!")
			}
		}
		return nil
	}
}

// patchedText applies the replace operations of patch to current and returns
// the resulting text. Operations run in document order, so the last wins.
func patchedText(patch jsonpatch.Patch, current string) (string, *requestError) {
	text := current
	for i, op := range patch {
		v, err := op.ValueInterface()
		if err != nil {
			return "", badRequest("operation %d: %v", i, err)
		}
		s, ok := v.(string)
		if !ok {
			return "", badRequest("operation %d: text must be a string", i)
		}
		text = s
	}
	if strings.TrimSpace(text) == "" {
		return "", badRequest("text must not be blank")
	}
	return text, nil
}
