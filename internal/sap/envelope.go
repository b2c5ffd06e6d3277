package sap

import "encoding/json"

// The tenant API wraps result lists in several envelope conventions depending
// on endpoint version. Extraction strategies are tried in a fixed order and
// the first match wins; re-ordering them changes behaviour for payloads that
// carry more than one candidate key.
type envelopeStrategy func(payload interface{}) ([]interface{}, bool)

var envelopeStrategies = []envelopeStrategy{
	extractODataD,
	keyExtractor("results"),
	keyExtractor("configurations"),
	keyExtractor("value"),
	extractBareArray,
}

// extractODataD handles the OData v2 envelope: {"d": {"results": [...]}} or
// the older {"d": [...]} variant.
func extractODataD(payload interface{}) ([]interface{}, bool) {
	obj, ok := payload.(map[string]interface{})
	if !ok {
		return nil, false
	}
	d, ok := obj["d"]
	if !ok {
		return nil, false
	}

	switch inner := d.(type) {
	case map[string]interface{}:
		if results, ok := inner["results"].([]interface{}); ok {
			return results, true
		}
	case []interface{}:
		return inner, true
	}
	return nil, false
}

// keyExtractor matches a top-level array under the given key
func keyExtractor(key string) envelopeStrategy {
	return func(payload interface{}) ([]interface{}, bool) {
		obj, ok := payload.(map[string]interface{})
		if !ok {
			return nil, false
		}
		items, ok := obj[key].([]interface{})
		if !ok {
			return nil, false
		}
		return items, true
	}
}

// extractBareArray treats the whole body as already being the target sequence
func extractBareArray(payload interface{}) ([]interface{}, bool) {
	items, ok := payload.([]interface{})
	return items, ok
}

// normalizeEnvelope decodes body and flattens whichever envelope it carries
// into a sequence of records. Malformed JSON and unrecognized shapes yield an
// empty sequence, not an error: the proxy prefers availability over
// strictness against this upstream. Non-object array elements are skipped.
func normalizeEnvelope(body []byte) []map[string]interface{} {
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}

	for _, extract := range envelopeStrategies {
		items, ok := extract(payload)
		if !ok {
			continue
		}
		records := make([]map[string]interface{}, 0, len(items))
		for _, item := range items {
			if record, ok := item.(map[string]interface{}); ok {
				records = append(records, record)
			}
		}
		return records
	}

	return nil
}

// normalizeObject decodes a single-entity response, unwrapping the OData
// {"d": {...}} envelope when present. Returns nil for anything that is not a
// JSON object.
func normalizeObject(body []byte) map[string]interface{} {
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}

	obj, ok := payload.(map[string]interface{})
	if !ok {
		return nil
	}
	if d, ok := obj["d"].(map[string]interface{}); ok {
		return d
	}
	return obj
}
