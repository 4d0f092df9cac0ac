package commerce

import (
	"context"
	"errors"
	"time"

	storex "github.com/tanpawarit/Chative-Support-Router/commerce/store"
)

type CustomerInfo struct {
	CustomerID       string    `json:"customer_id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	RegistrationDate time.Time `json:"registration_date"`
	LoyaltyTier      string    `json:"loyalty_tier"`
}

func (s *Service) GetCustomerInfo(ctx context.Context, customerID string) (*CustomerInfo, error) {
	c, err := s.store.Customers.GetByID(ctx, customerID)
	if errors.Is(err, storex.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &CustomerInfo{
		CustomerID:       c.CustomerID,
		Name:             c.Name,
		Email:            c.Email,
		Phone:            c.Phone,
		RegistrationDate: c.RegistrationDate,
		LoyaltyTier:      string(c.LoyaltyTier),
	}, nil
}

func (s *Service) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	return s.store.Customers.Exists(ctx, customerID)
}
