package mocks

import (
	"context"

	"docregistry/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockRegistryService struct {
	mock.Mock
}

func (m *MockRegistryService) Register(ctx context.Context, caller model.Principal, in model.DocumentInput) (uint64, error) {
	args := m.Called(ctx, caller, in)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockRegistryService) Update(ctx context.Context, caller model.Principal, id uint64, in model.DocumentInput) error {
	args := m.Called(ctx, caller, id, in)
	return args.Error(0)
}

func (m *MockRegistryService) Deregister(ctx context.Context, caller model.Principal, id uint64) error {
	args := m.Called(ctx, caller, id)
	return args.Error(0)
}

func (m *MockRegistryService) ReassignOwnership(ctx context.Context, caller model.Principal, id uint64, newOwner model.Principal) error {
	args := m.Called(ctx, caller, id, newOwner)
	return args.Error(0)
}

func (m *MockRegistryService) GrantAccess(ctx context.Context, caller model.Principal, id uint64, viewer model.Principal) error {
	args := m.Called(ctx, caller, id, viewer)
	return args.Error(0)
}

func (m *MockRegistryService) RevokeAccess(ctx context.Context, caller model.Principal, id uint64, viewer model.Principal) error {
	args := m.Called(ctx, caller, id, viewer)
	return args.Error(0)
}

func (m *MockRegistryService) ExtendTags(ctx context.Context, caller model.Principal, id uint64, tags []string) ([]string, error) {
	args := m.Called(ctx, caller, id, tags)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRegistryService) Freeze(ctx context.Context, caller model.Principal, id uint64) error {
	args := m.Called(ctx, caller, id)
	return args.Error(0)
}

func (m *MockRegistryService) Authenticate(ctx context.Context, caller model.Principal, id uint64, presumedOwner model.Principal) (*model.Authentication, error) {
	args := m.Called(ctx, caller, id, presumedOwner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Authentication), args.Error(1)
}

func (m *MockRegistryService) Statistics(ctx context.Context, caller model.Principal) (*model.Statistics, error) {
	args := m.Called(ctx, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Statistics), args.Error(1)
}

func (m *MockRegistryService) Get(ctx context.Context, caller model.Principal, id uint64) (*model.Document, error) {
	args := m.Called(ctx, caller, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}
