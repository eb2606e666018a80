// Package mocks 提供 repository 接口的手写 testify Mock 实现，仅用于测试。
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
)

// RoomRepository 是 repository.RoomRepository 的 Mock。
type RoomRepository struct {
	mock.Mock
}

var _ repository.RoomRepository = (*RoomRepository)(nil)

func (m *RoomRepository) FindByName(ctx context.Context, name string) (*domain.RoomRecord, error) {
	args := m.Called(ctx, name)
	var record *domain.RoomRecord
	if args.Get(0) != nil {
		record = args.Get(0).(*domain.RoomRecord)
	}
	return record, args.Error(1)
}

func (m *RoomRepository) Save(ctx context.Context, record *domain.RoomRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *RoomRepository) ListAll(ctx context.Context) ([]domain.RoomRecord, error) {
	args := m.Called(ctx)
	var records []domain.RoomRecord
	if args.Get(0) != nil {
		records = args.Get(0).([]domain.RoomRecord)
	}
	return records, args.Error(1)
}

func (m *RoomRepository) DeleteByName(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *RoomRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}
