package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
)

var (
	//go:embed template/classifier.txt
	classifierRaw string

	//go:embed template/sales.txt
	salesRaw string

	//go:embed template/tech_support.txt
	techSupportRaw string

	//go:embed template/order_inquiry.txt
	orderInquiryRaw string
)

// PromptSet holds the system prompts for the classifier and each handler.
type PromptSet struct {
	Classifier   string
	Sales        string
	TechSupport  string
	OrderInquiry string
}

func LoadPromptSet() PromptSet {
	return PromptSet{
		Classifier:   strings.TrimSpace(classifierRaw),
		Sales:        strings.TrimSpace(salesRaw),
		TechSupport:  strings.TrimSpace(techSupportRaw),
		OrderInquiry: strings.TrimSpace(orderInquiryRaw),
	}
}

// ForCategory returns the handler prompt for category.
func (p PromptSet) ForCategory(category contractx.Category) (string, error) {
	var out string
	switch category {
	case contractx.CategorySales:
		out = p.Sales
	case contractx.CategoryTechSupport:
		out = p.TechSupport
	case contractx.CategoryOrderInquiry:
		out = p.OrderInquiry
	default:
		return "", fmt.Errorf("%w: no handler prompt for category=%s", contractx.ErrPromptMissing, category)
	}
	if out == "" {
		return "", fmt.Errorf("%w: %s", contractx.ErrPromptMissing, category)
	}
	return out, nil
}

func (p PromptSet) Validate() error {
	if p.Classifier == "" {
		return fmt.Errorf("%w: classifier", contractx.ErrPromptMissing)
	}
	for _, c := range contractx.Categories() {
		if !c.HasHandler() {
			continue
		}
		if _, err := p.ForCategory(c); err != nil {
			return err
		}
	}
	return nil
}
