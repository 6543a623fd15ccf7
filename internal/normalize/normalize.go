// Package normalize reshapes OAE listing responses into flat directory records.
//
// The OAE API wraps each entity: {"results": [{"profile": {...}, "role": "member"}]}.
// Collections built directly from data hand over records that are already flat.
// Normalize accepts both shapes; normalizing an already-flat sequence is a no-op.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gscoppino/STEM/internal/template"
	"github.com/gscoppino/STEM/pkg/directory"
)

// Response field names.
const (
	ResultsField = "results"
	ProfileField = "profile"

	// smallPicturePath is the nested field the thumbnail is derived from.
	smallPicturePath = "picture.small"
)

// ErrJSONParse is returned when a response body is not valid JSON.
var ErrJSONParse = errors.New("failed to parse JSON response")

// Decode parses a response body into a raw response value.
func Decode(body []byte) (interface{}, error) {
	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJSONParse, err)
	}
	return raw, nil
}

// Parse decodes a response body and normalizes it.
func Parse(body []byte) ([]directory.Record, error) {
	raw, err := Decode(body)
	if err != nil {
		return nil, err
	}
	return Normalize(raw), nil
}

// Normalize converts a raw response into an ordered sequence of flat records.
//
//   - An object with a "results" array yields each wrapper's "profile", in order.
//     Wrapper metadata such as "role" is dropped. A profile without "thumbnailUrl"
//     but with "picture.small" gets that value copied into "thumbnailUrl"; the
//     copy is made on a shallow clone so the input is never modified.
//   - A flat sequence of records is returned unchanged. In a decoded JSON
//     array only the object elements are records; strings, numbers, nulls
//     and nested arrays are dropped and the remaining order is kept.
//   - Any other object is treated as a single flat record.
//
// Normalize never fails: malformed entries are skipped.
func Normalize(raw interface{}) []directory.Record {
	switch v := raw.(type) {
	case []directory.Record:
		return v
	case []map[string]interface{}:
		records := make([]directory.Record, len(v))
		for i, m := range v {
			records[i] = m
		}
		return records
	case []interface{}:
		return flatten(v)
	case directory.Record:
		return normalizeObject(v)
	case map[string]interface{}:
		return normalizeObject(v)
	default:
		return []directory.Record{}
	}
}

func normalizeObject(obj map[string]interface{}) []directory.Record {
	results, ok := obj[ResultsField].([]interface{})
	if !ok {
		return []directory.Record{obj}
	}

	records := make([]directory.Record, 0, len(results))
	for _, item := range results {
		wrapper, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		profile, ok := wrapper[ProfileField].(map[string]interface{})
		if !ok {
			continue
		}
		records = append(records, deriveThumbnail(profile))
	}
	return records
}

// flatten keeps the object entries of an already-flat sequence as-is and
// drops every other element.
func flatten(items []interface{}) []directory.Record {
	records := make([]directory.Record, 0, len(items))
	for _, item := range items {
		switch m := item.(type) {
		case directory.Record:
			records = append(records, m)
		case map[string]interface{}:
			records = append(records, m)
		}
	}
	return records
}

// deriveThumbnail returns the profile as a record, filling thumbnailUrl from
// picture.small when the profile has no thumbnail of its own.
func deriveThumbnail(profile map[string]interface{}) directory.Record {
	if thumb, has := profile[directory.FieldThumbnailURL]; has && thumb != nil && thumb != "" {
		return profile
	}

	small, found := template.GetNestedValue(profile, smallPicturePath)
	if !found || small == nil {
		return profile
	}

	record := make(directory.Record, len(profile)+1)
	for k, v := range profile {
		record[k] = v
	}
	record[directory.FieldThumbnailURL] = small
	return record
}
