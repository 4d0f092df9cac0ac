package tool

import (
	"github.com/cloudwego/eino/schema"
)

// Param declares one tool argument. The same declaration feeds the model's
// tool schema and the JSON Schema used to validate incoming arguments.
type Param struct {
	Name     string
	Type     schema.DataType
	Desc     string
	Required bool
	Enum     []string
	Minimum  *float64
	Items    *Param
	Fields   []Param
}

func (p Param) parameterInfo() *schema.ParameterInfo {
	info := &schema.ParameterInfo{
		Type:     p.Type,
		Desc:     p.Desc,
		Required: p.Required,
		Enum:     p.Enum,
	}
	if p.Items != nil {
		info.ElemInfo = p.Items.parameterInfo()
	}
	if len(p.Fields) > 0 {
		info.SubParams = paramInfos(p.Fields)
	}
	return info
}

func paramInfos(params []Param) map[string]*schema.ParameterInfo {
	out := make(map[string]*schema.ParameterInfo, len(params))
	for _, p := range params {
		out[p.Name] = p.parameterInfo()
	}
	return out
}

func (p Param) jsonSchema() map[string]any {
	out := map[string]any{"type": string(p.Type)}
	if p.Desc != "" {
		out["description"] = p.Desc
	}
	if len(p.Enum) > 0 {
		out["enum"] = p.Enum
	}
	if p.Minimum != nil {
		out["minimum"] = *p.Minimum
	}
	if p.Items != nil {
		out["items"] = p.Items.jsonSchema()
	}
	if p.Type == schema.Object {
		props, required := objectSchema(p.Fields)
		out["properties"] = props
		if len(required) > 0 {
			out["required"] = required
		}
	}
	return out
}

func objectSchema(params []Param) (map[string]any, []string) {
	props := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		props[p.Name] = p.jsonSchema()
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return props, required
}

// argsSchema is the JSON Schema of the whole argument object.
func argsSchema(params []Param) map[string]any {
	props, required := objectSchema(params)
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func minimum(v float64) *float64 {
	return &v
}
