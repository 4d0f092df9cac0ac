package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Support-Router/pkg/openrouter"
)

// Role selects the model settings for one caller of the chat model.
type Role string

const (
	RoleClassifier   Role = "classifier"
	RoleSales        Role = Role(contractx.CategorySales)
	RoleTechSupport  Role = Role(contractx.CategoryTechSupport)
	RoleOrderInquiry Role = Role(contractx.CategoryOrderInquiry)
)

// Roles lists every role in the order models are built.
func Roles() []Role {
	return []Role{RoleClassifier, RoleSales, RoleTechSupport, RoleOrderInquiry}
}

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" required:"true"`
	Model              string        `envconfig:"MODEL" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL"`
	SiteName           string        `envconfig:"SITE_NAME"`

	ClassifierModel         string  `envconfig:"CLASSIFIER_MODEL"`
	SalesModel              string  `envconfig:"SALES_MODEL"`
	TechSupportModel        string  `envconfig:"TECH_SUPPORT_MODEL"`
	OrderInquiryModel       string  `envconfig:"ORDER_INQUIRY_MODEL"`
	ClassifierTemperature   float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0"`
	SalesTemperature        float32 `envconfig:"SALES_TEMPERATURE" default:"-1"`
	TechSupportTemperature  float32 `envconfig:"TECH_SUPPORT_TEMPERATURE" default:"-1"`
	OrderInquiryTemperature float32 `envconfig:"ORDER_INQUIRY_TEMPERATURE" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	if c.MaxCompletionToken <= 0 {
		return fmt.Errorf("%w: max completion token must be > 0", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the model and temperature for role. A role model
// left empty or a negative role temperature falls back to the defaults.
func (c Config) OpenRouterFor(role Role) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	var (
		roleModel string
		roleTemp  float32 = -1
	)
	switch role {
	case RoleClassifier:
		roleModel, roleTemp = c.ClassifierModel, c.ClassifierTemperature
	case RoleSales:
		roleModel, roleTemp = c.SalesModel, c.SalesTemperature
	case RoleTechSupport:
		roleModel, roleTemp = c.TechSupportModel, c.TechSupportTemperature
	case RoleOrderInquiry:
		roleModel, roleTemp = c.OrderInquiryModel, c.OrderInquiryTemperature
	}
	if v := strings.TrimSpace(roleModel); v != "" {
		modelName = v
	}
	if roleTemp >= 0 {
		temp = roleTemp
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
