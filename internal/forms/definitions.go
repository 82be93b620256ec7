package forms

import (
	"formbridge/internal/domain"
	"formbridge/internal/tool"
)

// ToolPrefix namespaces every tool this package owns.
const ToolPrefix = "gravityforms_"

const (
	ActionListForms   = "list_forms"
	ActionGetForm     = "get_form"
	ActionCreateForm  = "create_form"
	ActionGetEntries  = "get_entries"
	ActionCreateEntry = "create_entry"
)

func definitions() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name:        ToolPrefix + ActionListForms,
			Description: "List all GravityForms forms",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"limit":  {Type: "number", Description: "Number of forms to return (default: 20)"},
				"offset": {Type: "number", Description: "Offset for pagination"},
			}, nil),
		},
		{
			Name:        ToolPrefix + ActionGetForm,
			Description: "Get details of a specific form",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"form_id": {Type: "number", Description: "ID of the form to retrieve"},
			}, []string{"form_id"}),
		},
		{
			Name:        ToolPrefix + ActionCreateForm,
			Description: "Create a new form",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"title":       {Type: "string", Description: "Form title"},
				"description": {Type: "string", Description: "Form description"},
			}, []string{"title"}),
		},
		{
			Name:        ToolPrefix + ActionGetEntries,
			Description: "Get form entries",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"form_id": {Type: "number", Description: "ID of the form"},
				"limit":   {Type: "number", Description: "Number of entries to return (default: 20)"},
			}, []string{"form_id"}),
		},
		{
			Name:        ToolPrefix + ActionCreateEntry,
			Description: "Create a new form entry",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"form_id": {Type: "number", Description: "ID of the form"},
				"data":    {Type: "object", Description: "Entry data with field values"},
			}, []string{"form_id", "data"}),
		},
	}
}
