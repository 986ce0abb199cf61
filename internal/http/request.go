// Package http serves the calendar pages and HTMX partials.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gastos/internal/view"
)

// maxBodyBytes bounds every form submission.
const maxBodyBytes = 64 << 10

// ErrBodyTooLarge is returned for bodies over maxBodyBytes.
var ErrBodyTooLarge = errors.New("request body too large")

// ParsePeriod reads year and month from query parameters. Missing values keep
// the fallback; an empty or zero month selects the whole year.
func ParsePeriod(query url.Values, fallback view.Period) (view.Period, error) {
	p := fallback
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return view.Period{}, view.ErrInvalidPeriod
		}
		p.Year = y
	}
	if _, ok := query["month"]; ok {
		p.Month = 0
		if v := strings.TrimSpace(query.Get("month")); v != "" {
			m, err := strconv.Atoi(v)
			if err != nil {
				return view.Period{}, view.ErrInvalidPeriod
			}
			p.Month = time.Month(m)
		}
	}
	if !p.Valid() {
		return view.Period{}, view.ErrInvalidPeriod
	}
	return p, nil
}

// Form is a submitted body flattened to cleaned string values. htmx posts
// url-encoded forms; a JSON object is accepted too, its arrays becoming
// repeated values.
type Form struct {
	values   url.Values
	fromJSON bool
}

// ReadForm decodes r's body. Bodies over maxBodyBytes fail with
// ErrBodyTooLarge rather than being decoded truncated.
func ReadForm(r *http.Request) (*Form, error) {
	if r.Body == nil {
		return decodeForm("", nil)
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return decodeForm(r.Header.Get("Content-Type"), body)
}

// decodeForm treats body as JSON when declared so or when it opens with '{'.
func decodeForm(contentType string, body []byte) (*Form, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return &Form{values: url.Values{}}, nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "application/json" && body[0] != '{' {
		raw, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, err
		}
		values := make(url.Values, len(raw))
		for key, vs := range raw {
			for _, v := range vs {
				values.Add(key, clean(v))
			}
		}
		return &Form{values: values}, nil
	}

	var object map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&object); err != nil {
		return nil, err
	}
	values := make(url.Values, len(object))
	for key, v := range object {
		items, ok := v.([]any)
		if !ok {
			items = []any{v}
		}
		for _, item := range items {
			if s, ok := scalar(item); ok {
				values.Add(key, clean(s))
			}
		}
	}
	return &Form{values: values, fromJSON: true}, nil
}

// scalar renders a JSON leaf. Objects and nulls have no form value.
func scalar(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

// clean trims v and drops control characters other than tab and newlines.
func clean(v string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < ' ' && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, v))
}

// Get returns the first value under key, or "".
func (f *Form) Get(key string) string {
	return f.values.Get(key)
}

// GetAll returns every value under key in submission order.
func (f *Form) GetAll(key string) []string {
	return f.values[key]
}

// IsJSON reports whether the body was a JSON object.
func (f *Form) IsJSON() bool {
	return f.fromJSON
}

// ReadFormOrFail is ReadForm with the response a handler sends on failure:
// 413 for an oversized body, 400 otherwise.
func ReadFormOrFail(r *http.Request) (*Form, *HTMXResponseBuilder) {
	f, err := ReadForm(r)
	if errors.Is(err, ErrBodyTooLarge) {
		return nil, ErrorResponse(http.StatusRequestEntityTooLarge, "Formulário grande demais.")
	}
	if err != nil {
		return nil, BadRequestError("Formato de requisição inválido")
	}
	return f, nil
}

// RequireMethod answers 405 unless r uses one of methods.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequireGET admits HEAD as well.
func RequireGET(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}
