package mocks

import (
	"context"

	"github.com/rpggio/sealab/internal/domain/activity"
	"github.com/rpggio/sealab/internal/ledger"
	"github.com/stretchr/testify/mock"
)

// Ledger is a mock for ledger.Ledger.
type Ledger struct {
	mock.Mock
}

func (m *Ledger) IsAvailable(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *Ledger) GetData(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if data, ok := args.Get(0).([]byte); ok {
		return data, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Ledger) SetData(ctx context.Context, key string, value []byte) (ledger.Receipt, error) {
	args := m.Called(ctx, key, value)
	if receipt, ok := args.Get(0).(ledger.Receipt); ok {
		return receipt, args.Error(1)
	}
	return ledger.Receipt{}, args.Error(1)
}

// KeyIndex is a mock for the registry's key index.
type KeyIndex struct {
	mock.Mock
}

func (m *KeyIndex) Load(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if ids, ok := args.Get(0).([]string); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *KeyIndex) Append(ctx context.Context, id string) (ledger.Receipt, error) {
	args := m.Called(ctx, id)
	if receipt, ok := args.Get(0).(ledger.Receipt); ok {
		return receipt, args.Error(1)
	}
	return ledger.Receipt{}, args.Error(1)
}

// ActivityRepository is a mock for activity.Repository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, entry *activity.ActivityEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]activity.ActivityEntry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}
