package tool

import "github.com/google/jsonschema-go/jsonschema"

// Names of the tools advertised to the AI backend.
const (
	GetWeather        = "get_weather"
	SearchCompanyInfo = "search_company_info"
	Calculate         = "calculate"
)

// Function is the JSON-schema function declaration sent in the persona llm layer.
type Function struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// Declaration wraps a Function the way OpenAI-compatible backends expect it.
type Declaration struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Catalog returns the declarations of every tool the avatar may call.
func Catalog() []Declaration {
	return []Declaration{
		{
			Type: "function",
			Function: Function{
				Name:        GetWeather,
				Description: "Get current weather information for a specific location",
				Parameters: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"location": {
							Type:        "string",
							Description: "The city and country, e.g. 'New York, USA' or 'London, UK'",
						},
						"unit": {
							Type:        "string",
							Enum:        []any{"celsius", "fahrenheit"},
							Description: "Temperature unit preference",
						},
					},
					Required: []string{"location"},
				},
			},
		},
		{
			Type: "function",
			Function: Function{
				Name:        SearchCompanyInfo,
				Description: "Search for company information from the knowledge base",
				Parameters: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"query": {
							Type:        "string",
							Description: "Search query for company information",
						},
					},
					Required: []string{"query"},
				},
			},
		},
		{
			Type: "function",
			Function: Function{
				Name:        Calculate,
				Description: "Perform mathematical calculations",
				Parameters: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"expression": {
							Type:        "string",
							Description: "Mathematical expression to calculate, e.g. '2 + 2' or '10 * 5'",
						},
					},
					Required: []string{"expression"},
				},
			},
		},
	}
}

// Find looks up a declaration by function name.
func Find(decls []Declaration, name string) (Declaration, bool) {
	for _, decl := range decls {
		if decl.Function.Name == name {
			return decl, true
		}
	}
	return Declaration{}, false
}
