package domain

import (
	"fmt"
	"strings"
	"time"
)

type ProductStatus uint8

const (
	ProductCreated ProductStatus = iota
	ProductDelivered
	ProductReceived
)

func (s ProductStatus) String() string {
	switch s {
	case ProductCreated:
		return "Created"
	case ProductDelivered:
		return "Delivered"
	case ProductReceived:
		return "Received"
	default:
		return "UNKNOWN"
	}
}

func (s ProductStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ProductStatus) UnmarshalText(text []byte) error {
	for _, candidate := range []ProductStatus{ProductCreated, ProductDelivered, ProductReceived} {
		if strings.EqualFold(candidate.String(), string(text)) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("%w: unknown product status %q", ErrInvalidInput, text)
}

type Product struct {
	ID        uint64        `json:"id"`
	Name      string        `json:"name"`
	Importer  string        `json:"importer"`
	Status    ProductStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
