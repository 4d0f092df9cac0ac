package tool

import (
	"context"
	"fmt"
	"slices"

	"github.com/cloudwego/eino/schema"
	"github.com/xeipuuv/gojsonschema"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
)

const (
	ToolSearchProducts     = "search_products"
	ToolGetProductInfo     = "get_product_info"
	ToolGetCustomerInfo    = "get_customer_info"
	ToolPlaceOrder         = "place_order"
	ToolGetTechnicalIssues = "get_technical_issues"
	ToolGetOrderDetails    = "get_order_details"
	ToolGetCustomerOrders  = "get_customer_orders"

	// ToolEscalateToHuman is bound to every handler but never executed; a
	// call to it is the hand-off signal.
	ToolEscalateToHuman = "escalate_to_human"
)

var partitions = map[contractx.Category][]string{
	contractx.CategorySales:        {ToolSearchProducts, ToolGetProductInfo, ToolGetCustomerInfo, ToolPlaceOrder},
	contractx.CategoryTechSupport:  {ToolGetProductInfo, ToolGetTechnicalIssues},
	contractx.CategoryOrderInquiry: {ToolGetOrderDetails, ToolGetCustomerOrders},
}

type runFunc func(ctx context.Context, backend Backend, args map[string]any) (any, error)

type definition struct {
	name     string
	desc     string
	params   []Param
	mutating bool
	run      runFunc
	schema   *gojsonschema.Schema
}

func (d *definition) info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        d.name,
		Desc:        d.desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(paramInfos(d.params)),
	}
}

var (
	customerIDParam = Param{Name: "customer_id", Type: schema.String, Desc: "The unique customer identifier (e.g., 'CUST001')", Required: true}
	productIDParam  = Param{Name: "product_id", Type: schema.String, Desc: "The unique product identifier (e.g., 'LP-5000')", Required: true}
	orderIDParam    = Param{Name: "order_id", Type: schema.String, Desc: "The unique order identifier (e.g., 'ORD1A2B3C')", Required: true}
)

var definitions = mustCompile([]*definition{
	{
		name: ToolSearchProducts,
		desc: "Search for products by category and/or keyword. Returns up to 10 matching products.",
		params: []Param{
			{Name: "category", Type: schema.String, Desc: "Product category to filter by (optional)"},
			{Name: "keyword", Type: schema.String, Desc: "Search keyword to match in product name or description (optional)"},
		},
		run: runSearchProducts,
	},
	{
		name:   ToolGetProductInfo,
		desc:   "Get detailed product information by product ID, including price, stock and specifications.",
		params: []Param{productIDParam},
		run:    runGetProductInfo,
	},
	{
		name:   ToolGetCustomerInfo,
		desc:   "Get customer information by customer ID, including name, email, phone and loyalty tier.",
		params: []Param{customerIDParam},
		run:    runGetCustomerInfo,
	},
	{
		name: ToolPlaceOrder,
		desc: "Place a new order for a customer. Returns the order confirmation with order_id and total amount, or an error message.",
		params: []Param{
			{Name: "customer_id", Type: schema.String, Desc: "Customer ID (e.g., 'CUST001')", Required: true},
			{
				Name:     "items",
				Type:     schema.Array,
				Desc:     "Items to order, each with product_id and quantity",
				Required: true,
				Items: &Param{
					Type: schema.Object,
					Fields: []Param{
						{Name: "product_id", Type: schema.String, Desc: "Product ID (e.g., 'LP-5000')", Required: true},
						{Name: "quantity", Type: schema.Integer, Desc: "Quantity to order, defaults to 1", Minimum: minimum(1)},
					},
				},
			},
			{Name: "shipping_address", Type: schema.String, Desc: "Full shipping address as a string", Required: true},
		},
		mutating: true,
		run:      runPlaceOrder,
	},
	{
		name: ToolGetTechnicalIssues,
		desc: "Get known technical issues and their solutions. Returns up to 10 issues.",
		params: []Param{
			{Name: "product_id", Type: schema.String, Desc: "Filter issues by specific product ID (optional)"},
		},
		run: runGetTechnicalIssues,
	},
	{
		name:   ToolGetOrderDetails,
		desc:   "Get detailed information about a specific order: status, items, total amount and shipping information.",
		params: []Param{orderIDParam},
		run:    runGetOrderDetails,
	},
	{
		name:   ToolGetCustomerOrders,
		desc:   "Get the orders of a specific customer, newest first, up to 20.",
		params: []Param{customerIDParam},
		run:    runGetCustomerOrders,
	},
})

var escalateInfo = &schema.ToolInfo{
	Name: ToolEscalateToHuman,
	Desc: "Hand the conversation over to a human support representative.",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"reason": {Type: schema.String, Desc: "Short reason for the hand-off"},
	}),
}

func mustCompile(defs []*definition) map[string]*definition {
	out := make(map[string]*definition, len(defs))
	for _, d := range defs {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(argsSchema(d.params)))
		if err != nil {
			panic(fmt.Sprintf("tool %s: compile argument schema: %v", d.name, err))
		}
		d.schema = compiled
		out[d.name] = d
	}
	return out
}

// Names returns the data tools available to category.
func Names(category contractx.Category) []string {
	return slices.Clone(partitions[category])
}

// Allowed reports whether category may call tool. The escalation tool is
// allowed for every handler category.
func Allowed(category contractx.Category, tool string) bool {
	if !category.HasHandler() {
		return false
	}
	if tool == ToolEscalateToHuman {
		return true
	}
	return slices.Contains(partitions[category], tool)
}

// InfosFor returns the tool schemas bound to the category's model,
// escalate_to_human included.
func InfosFor(category contractx.Category) []*schema.ToolInfo {
	names := partitions[category]
	if len(names) == 0 {
		return nil
	}
	infos := make([]*schema.ToolInfo, 0, len(names)+1)
	for _, name := range names {
		infos = append(infos, definitions[name].info())
	}
	return append(infos, escalateInfo)
}
