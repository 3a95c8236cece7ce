package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// APIError is a failed catalog action.
type APIError struct {
	Action     string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s failed (HTTP %d)", e.Action, e.StatusCode)
	if e.Type != "" {
		msg += " " + e.Type
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// NotFound reports whether the catalog did not find the object.
func (e *APIError) NotFound() bool {
	return e.StatusCode == 404 || e.Type == "Not Found Error"
}

// ckanError is the error member of an action API response.
type ckanError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
	// validation errors come as field -> messages
	Fields map[string]json.RawMessage `json:"-"`
}

func (e *ckanError) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Fields = make(map[string]json.RawMessage)
	for k, v := range raw {
		switch k {
		case "__type":
			_ = json.Unmarshal(v, &e.Type)
		case "message":
			_ = json.Unmarshal(v, &e.Message)
		default:
			e.Fields[k] = v
		}
	}
	return nil
}

func (e *ckanError) text() string {
	if e.Message != "" || len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, compact(msg)))
	}
	return strings.Join(sorted(parts), "; ")
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// htmlErrorMessage extracts a readable message from an HTML error page, as
// returned by the site's proxy for gateway errors and by CKAN for some 403s.
func htmlErrorMessage(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	for _, sel := range []string{"h1", "title", "p"} {
		text := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " ")
		if text != "" {
			return text
		}
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
