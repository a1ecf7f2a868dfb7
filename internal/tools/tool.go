package tools

// Capability is the closed set of browser actions the planning service may request.
type Capability string

const (
	OpenWebBrowser Capability = "open_web_browser"
	GotoURL        Capability = "goto_url"
	ClickElement   Capability = "click_element"
	TypeText       Capability = "type_text"
)

// Capabilities lists every capability in declaration order.
var Capabilities = []Capability{OpenWebBrowser, GotoURL, ClickElement, TypeText}

// Lookup resolves a name sent by the model to a Capability.
func Lookup(name string) (Capability, bool) {
	for _, c := range Capabilities {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// IsKnown reports whether name is one of the declared capabilities.
func IsKnown(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// Declaration describes a capability to the planning service.
type Declaration struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema for the capability's inputs
}

// Declarations returns the fixed capability table sent with every request.
func Declarations() []Declaration {
	return []Declaration{
		{
			Name:        string(OpenWebBrowser),
			Description: "Open the web browser. Does nothing if a page is already open.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        string(GotoURL),
			Description: "Navigate the current page to a URL.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "Absolute http or https URL to load",
					},
				},
				"required": []string{"url"},
			},
		},
		{
			Name:        string(ClickElement),
			Description: "Click the element matching a CSS selector.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"selector": map[string]any{
						"type":        "string",
						"description": "CSS selector for the target element",
					},
				},
				"required": []string{"selector"},
			},
		},
		{
			Name:        string(TypeText),
			Description: "Replace the value of an input element with the given text.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"selector": map[string]any{
						"type":        "string",
						"description": "CSS selector for the input element",
					},
					"text": map[string]any{
						"type":        "string",
						"description": "Text to fill in; empty clears the field",
					},
				},
				"required": []string{"selector"},
			},
		},
	}
}
