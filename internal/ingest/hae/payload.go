package hae

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/claude/haeingest/internal/ingest"
	"github.com/claude/haeingest/internal/models"
)

func invalid(code, format string, args ...any) *ingest.ValidationError {
	return &ingest.ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Decode checks the top-level shape of a request body and splits it into raw
// metric and workout entries. Both the REST wrapper {"data": {...}} and a bare
// {"metrics": [...], "workouts": [...]} object are accepted. Entries are not
// decoded here, so one malformed entry cannot reject the request.
func Decode(body []byte) (*models.HAEPayload, error) {
	if !gjson.ValidBytes(body) {
		var probe any
		err := json.Unmarshal(body, &probe)
		return nil, &ingest.ValidationError{Code: ingest.CodeInvalidJSON, Message: "failed to parse JSON payload", Err: err}
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, invalid(ingest.CodeInvalidPayload, "payload must be a JSON object, got %s", kind(root))
	}

	data := root
	if d := root.Get("data"); d.Exists() {
		switch {
		case d.Type == gjson.Null:
			return &models.HAEPayload{}, nil
		case !d.IsObject():
			return nil, invalid(ingest.CodeInvalidPayload, `"data" must be an object, got %s`, kind(d))
		}
		data = d
	}

	metrics, err := collection(data, "metrics")
	if err != nil {
		return nil, err
	}
	workouts, err := collection(data, "workouts")
	if err != nil {
		return nil, err
	}

	if metrics == nil && workouts == nil && hasKeys(data) {
		return nil, invalid(ingest.CodeInvalidPayload, `payload has neither "metrics" nor "workouts"`)
	}

	return &models.HAEPayload{Data: models.HAEData{Metrics: metrics, Workouts: workouts}}, nil
}

// collection returns the raw elements of an array-valued key. A missing or
// null key yields nil.
func collection(obj gjson.Result, key string) ([]json.RawMessage, error) {
	v := obj.Get(key)
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	if !v.IsArray() {
		return nil, invalid(ingest.CodeInvalidPayload, "%q must be an array, got %s", key, kind(v))
	}
	out := []json.RawMessage{}
	v.ForEach(func(_, el gjson.Result) bool {
		out = append(out, json.RawMessage(el.Raw))
		return true
	})
	return out, nil
}

func hasKeys(obj gjson.Result) bool {
	found := false
	obj.ForEach(func(_, _ gjson.Result) bool {
		found = true
		return false
	})
	return found
}

func kind(v gjson.Result) string {
	switch {
	case v.IsObject():
		return "object"
	case v.IsArray():
		return "array"
	}
	switch v.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.Null:
		return "null"
	}
	return "unknown"
}
