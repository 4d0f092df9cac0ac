package contract

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Category names the handler responsible for a turn.
type Category string

const (
	CategorySales        Category = "sales"
	CategoryTechSupport  Category = "tech_support"
	CategoryOrderInquiry Category = "order_inquiry"
	CategoryEscalation   Category = "escalation"
)

// Categories lists every category in classifier order.
func Categories() []Category {
	return []Category{CategorySales, CategoryTechSupport, CategoryOrderInquiry, CategoryEscalation}
}

func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case CategorySales, CategoryTechSupport, CategoryOrderInquiry, CategoryEscalation:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
	}
}

// HasHandler reports whether the category is served by a tool-calling handler.
func (c Category) HasHandler() bool {
	switch c {
	case CategorySales, CategoryTechSupport, CategoryOrderInquiry:
		return true
	default:
		return false
	}
}

func (c Category) Valid() bool {
	return c.HasHandler() || c == CategoryEscalation
}

// Identifiers are the sticky ids a conversation accumulates.
type Identifiers struct {
	OrderID    string `json:"order_id,omitempty"`
	ProductID  string `json:"product_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
}

// Merge returns i overwritten by every non-empty field of next. Empty fields
// never clear a known value.
func (i Identifiers) Merge(next Identifiers) Identifiers {
	if v := strings.TrimSpace(next.OrderID); v != "" {
		i.OrderID = v
	}
	if v := strings.TrimSpace(next.ProductID); v != "" {
		i.ProductID = v
	}
	if v := strings.TrimSpace(next.CustomerID); v != "" {
		i.CustomerID = v
	}
	return i
}

func (i Identifiers) IsZero() bool {
	return i.OrderID == "" && i.ProductID == "" && i.CustomerID == ""
}

type ClassifyRequest struct {
	History []*schema.Message `json:"history"`
	Message string            `json:"message"`
	Known   Identifiers       `json:"known"`
}

type Classification struct {
	Category    Category    `json:"category"`
	Identifiers Identifiers `json:"identifiers"`
}

// HandlerRequest carries the conversation so far, ending with the current
// user message and any tool results produced earlier in the turn.
type HandlerRequest struct {
	Category Category          `json:"category"`
	Messages []*schema.Message `json:"messages"`
	Known    Identifiers       `json:"known"`
}

type HandlerResponse struct {
	// Message is the assistant message as generated, tool calls included.
	Message          *schema.Message `json:"-"`
	Reply            string          `json:"reply,omitempty"`
	ToolRequests     []ToolRequest   `json:"tool_requests,omitempty"`
	Escalate         bool            `json:"escalate,omitempty"`
	EscalationReason string          `json:"escalation_reason,omitempty"`
}

type ToolRequest struct {
	ID   string         `json:"id"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type ToolResult struct {
	Tool   string `json:"tool"`
	CallID string `json:"call_id,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the tool produced a result rather than an error payload.
func (r ToolResult) OK() bool {
	return r.Error == ""
}

// Escalation is the hand-off record sent to human support.
type Escalation struct {
	SessionID   string      `json:"session_id"`
	Reason      string      `json:"reason,omitempty"`
	UserMessage string      `json:"user_message"`
	Identifiers Identifiers `json:"identifiers"`
	From        Category    `json:"from"`
}

type TurnReply struct {
	SessionID string      `json:"session_id"`
	Reply     string      `json:"reply"`
	Category  Category    `json:"category"`
	Escalated bool        `json:"escalated"`
	Known     Identifiers `json:"identifiers"`
}
