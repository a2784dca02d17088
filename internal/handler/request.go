package handler

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
)

// readFields returns the request's parameters whether the vendor (or a
// trigger) sent them as a JSON object, a form body or a query string.
// JSON scalars are flattened to strings; nested values are ignored.
func readFields(r *http.Request) (url.Values, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != contentTypeJSON {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.Form, nil
	}

	fields := url.Values{}
	for key, vals := range r.URL.Query() {
		fields[key] = vals
	}

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	for key, val := range body {
		switch v := val.(type) {
		case string:
			fields.Set(key, v)
		case float64:
			fields.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
		case bool:
			fields.Set(key, strconv.FormatBool(v))
		}
	}
	return fields, nil
}

// knownCallStatuses are the values the vendor sends in CallStatus.
var knownCallStatuses = map[string]bool{
	"queued":      true,
	"ringing":     true,
	"in-progress": true,
	"completed":   true,
	"busy":        true,
	"failed":      true,
	"no-answer":   true,
	"canceled":    true,
}

// callStatusLabel keeps the status metric's label set bounded.
func callStatusLabel(status string) string {
	if knownCallStatuses[status] {
		return status
	}
	return "unknown"
}
