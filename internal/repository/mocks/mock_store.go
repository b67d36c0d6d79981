package mocks

import (
	"context"

	"docregistry/internal/repository"
	"github.com/stretchr/testify/mock"
)

// MockStore fails Atomic with the configured error or hands Tx to fn.
type MockStore struct {
	mock.Mock
	Tx repository.Tx
}

func (m *MockStore) Atomic(ctx context.Context, fn func(tx repository.Tx) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m.Tx)
}
