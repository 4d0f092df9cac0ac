package commerce

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	storex "github.com/tanpawarit/Chative-Support-Router/commerce/store"
)

const (
	orderIDPrefix   = "ORD"
	orderIDAttempts = 5
)

// NewOrderID returns "ORD" followed by six uppercase hex digits.
func NewOrderID() (string, error) {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random order id: %w", err)
	}
	return orderIDPrefix + strings.ToUpper(hex.EncodeToString(b[:])), nil
}

func (s *Service) allocateOrderID(ctx context.Context, tx *storex.Store) (string, error) {
	for range orderIDAttempts {
		id, err := s.newOrderID()
		if err != nil {
			return "", err
		}
		taken, err := tx.Orders.Exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check order id %s: %w", id, err)
		}
		if !taken {
			return id, nil
		}
	}
	return "", ErrOrderIDExhausted
}
