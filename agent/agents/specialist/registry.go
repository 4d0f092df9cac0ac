package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	llmx "github.com/tanpawarit/Chative-Support-Router/agent/llm"
	promptx "github.com/tanpawarit/Chative-Support-Router/agent/prompt"
)

type registryImpl struct {
	classifier   contractx.Classifier
	sales        contractx.Handler
	techSupport  contractx.Handler
	orderInquiry contractx.Handler
}

func (r *registryImpl) Classifier() contractx.Classifier {
	return r.classifier
}

func (r *registryImpl) Sales() contractx.Handler {
	return r.sales
}

func (r *registryImpl) TechSupport() contractx.Handler {
	return r.techSupport
}

func (r *registryImpl) OrderInquiry() contractx.Handler {
	return r.orderInquiry
}

// Models are the chat models behind the registry, one per role.
type Models struct {
	Classifier   einomodel.BaseChatModel
	Sales        einomodel.ToolCallingChatModel
	TechSupport  einomodel.ToolCallingChatModel
	OrderInquiry einomodel.ToolCallingChatModel
}

func NewRegistry(ctx context.Context, cfg llmx.Config, policy RetryPolicy) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var models Models
	for _, role := range llmx.Roles() {
		modelCfg := cfg.OpenRouterFor(role)
		m, err := modelCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, role, err)
		}
		switch role {
		case llmx.RoleClassifier:
			models.Classifier = m
		case llmx.RoleSales:
			models.Sales = m
		case llmx.RoleTechSupport:
			models.TechSupport = m
		case llmx.RoleOrderInquiry:
			models.OrderInquiry = m
		}
	}

	return NewRegistryFromModels(ctx, models, promptx.LoadPromptSet(), policy)
}

// NewRegistryFromModels builds the classifier and the three handlers over
// already constructed models.
func NewRegistryFromModels(ctx context.Context, models Models, prompts promptx.PromptSet, policy RetryPolicy) (contractx.Registry, error) {
	if err := prompts.Validate(); err != nil {
		return nil, err
	}
	if models.Classifier == nil || models.Sales == nil || models.TechSupport == nil || models.OrderInquiry == nil {
		return nil, fmt.Errorf("%w: every role needs a model", contractx.ErrValidation)
	}

	classifier, err := newClassifier(ctx, models.Classifier, prompts.Classifier)
	if err != nil {
		return nil, err
	}

	handlers := make(map[contractx.Category]contractx.Handler, 3)
	for category, chatModel := range map[contractx.Category]einomodel.ToolCallingChatModel{
		contractx.CategorySales:        models.Sales,
		contractx.CategoryTechSupport:  models.TechSupport,
		contractx.CategoryOrderInquiry: models.OrderInquiry,
	} {
		prompt, err := prompts.ForCategory(category)
		if err != nil {
			return nil, err
		}
		h, err := newHandler(ctx, category, chatModel, prompt)
		if err != nil {
			return nil, err
		}
		handlers[category] = WithHandlerRetry(h, policy)
	}

	return &registryImpl{
		classifier:   WithClassifierRetry(classifier, policy),
		sales:        handlers[contractx.CategorySales],
		techSupport:  handlers[contractx.CategoryTechSupport],
		orderInquiry: handlers[contractx.CategoryOrderInquiry],
	}, nil
}
