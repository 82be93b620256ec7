package forms

import (
	"fmt"
	"net/http"
)

const (
	defaultLimit  = 20
	defaultOffset = 0
)

// Request is one call against the forms REST API, relative to its
// namespace root.
type Request struct {
	Method   string
	Endpoint string
	Body     map[string]any
}

// builder turns tool arguments into a Request or a validation error.
type builder func(a argReader) (Request, error)

var builders = map[string]builder{
	ActionListForms:   buildListForms,
	ActionGetForm:     buildGetForm,
	ActionCreateForm:  buildCreateForm,
	ActionGetEntries:  buildGetEntries,
	ActionCreateEntry: buildCreateEntry,
}

// BuildRequest validates args for action and returns the request to send.
// ok is false when action is not one of the known actions.
func BuildRequest(action string, args map[string]any, strict bool) (req Request, ok bool, err error) {
	b, ok := builders[action]
	if !ok {
		return Request{}, false, nil
	}
	req, err = b(argReader{args: args, strict: strict})
	return req, true, err
}

func buildListForms(a argReader) (Request, error) {
	limit, err := a.intOr("limit", defaultLimit)
	if err != nil {
		return Request{}, err
	}
	offset, err := a.intOr("offset", defaultOffset)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Method:   http.MethodGet,
		Endpoint: fmt.Sprintf("forms?limit=%d&offset=%d", limit, offset),
	}, nil
}

func buildGetForm(a argReader) (Request, error) {
	if err := a.require("form_id"); err != nil {
		return Request{}, err
	}
	formID, err := a.int("form_id")
	if err != nil {
		return Request{}, err
	}
	return Request{
		Method:   http.MethodGet,
		Endpoint: fmt.Sprintf("forms/%d", formID),
	}, nil
}

func buildCreateForm(a argReader) (Request, error) {
	if err := a.require("title"); err != nil {
		return Request{}, err
	}
	return Request{
		Method:   http.MethodPost,
		Endpoint: "forms",
		Body: map[string]any{
			"title":       a.text("title"),
			"description": a.text("description"),
		},
	}, nil
}

func buildGetEntries(a argReader) (Request, error) {
	if err := a.require("form_id"); err != nil {
		return Request{}, err
	}
	formID, err := a.int("form_id")
	if err != nil {
		return Request{}, err
	}
	limit, err := a.intOr("limit", defaultLimit)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Method:   http.MethodGet,
		Endpoint: fmt.Sprintf("entries?form_ids[]=%d&limit=%d", formID, limit),
	}, nil
}

// buildCreateEntry sends {form_id} shallow-merged with data; keys in data
// win. A non-object data is ignored unless strict.
func buildCreateEntry(a argReader) (Request, error) {
	if err := a.require("form_id", "data"); err != nil {
		return Request{}, err
	}
	formID, err := a.int("form_id")
	if err != nil {
		return Request{}, err
	}

	body := map[string]any{"form_id": formID}
	data, isObject := a.object("data")
	if !isObject && a.strict {
		return Request{}, &ValidationError{Field: "data", Reason: "must be an object"}
	}
	for k, v := range data {
		body[k] = v
	}
	return Request{
		Method:   http.MethodPost,
		Endpoint: "entries",
		Body:     body,
	}, nil
}
