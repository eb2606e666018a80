package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"collaborative-canvas/internal/repository"
)

// AssetStore 是 repository.AssetStore 的 Mock。
type AssetStore struct {
	mock.Mock
}

var _ repository.AssetStore = (*AssetStore)(nil)

func (m *AssetStore) Save(ctx context.Context, roomName, filename string, content io.Reader) (string, error) {
	args := m.Called(ctx, roomName, filename, content)
	return args.String(0), args.Error(1)
}

func (m *AssetStore) RemoveRoom(ctx context.Context, roomName string) error {
	args := m.Called(ctx, roomName)
	return args.Error(0)
}
