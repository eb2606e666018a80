package service_test // 测试包

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository/mocks"
	"collaborative-canvas/internal/service"
)

const testRetention = 30 * 24 * time.Hour

// --- 测试 Sweep 方法 ---

func TestLifecycleService_Sweep_RemovesExpiredRooms(t *testing.T) {
	// Arrange: 一个过期、一个活跃、一个只有 CreatedAt 的老记录
	mockRoomRepo := new(mocks.RoomRepository)
	mockAssetStore := new(mocks.AssetStore)
	rooms := service.NewRoomService(mockRoomRepo)
	lifecycle := service.NewLifecycleService(mockRoomRepo, mockAssetStore, rooms, testRetention)
	ctx := context.Background()

	records := []domain.RoomRecord{
		{ID: 1, Name: "stale-room", LastModified: time.Now().Add(-31 * 24 * time.Hour)},
		{ID: 2, Name: "fresh-room", LastModified: time.Now().Add(-24 * time.Hour)},
		{ID: 3, Name: "faded-room", CreatedAt: time.Now().Add(-40 * 24 * time.Hour)}, // 无 LastModified，退回 CreatedAt
	}
	mockRoomRepo.On("ListAll", ctx).Return(records, nil).Once()
	mockRoomRepo.On("DeleteByName", ctx, "stale-room").Return(nil).Once()
	mockRoomRepo.On("DeleteByName", ctx, "faded-room").Return(nil).Once()
	mockAssetStore.On("RemoveRoom", ctx, "stale-room").Return(nil).Once()
	mockAssetStore.On("RemoveRoom", ctx, "faded-room").Return(nil).Once()

	// 预加载过期房间，验证清扫会驱逐内存缓存
	mockRoomRepo.On("FindByName", ctx, "stale-room").Return(&records[0], nil).Once()
	require.NoError(t, rooms.WithRoom(ctx, "stale-room", func(room *domain.Room) error { return nil }))
	_, ok := rooms.Get("stale-room")
	require.True(t, ok)

	// Act
	report, err := lifecycle.Sweep(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Swept)
	assert.Equal(t, 0, report.Failed)

	_, ok = rooms.Get("stale-room")
	assert.False(t, ok, "被清扫房间的内存缓存应被驱逐")

	// 活跃房间毫发无损
	mockRoomRepo.AssertNotCalled(t, "DeleteByName", mock.Anything, "fresh-room")
	mockRoomRepo.AssertExpectations(t)
	mockAssetStore.AssertExpectations(t)
}

func TestLifecycleService_Sweep_FreshRoomUntouched(t *testing.T) {
	// Arrange: 差一天到保留期的房间
	mockRoomRepo := new(mocks.RoomRepository)
	mockAssetStore := new(mocks.AssetStore)
	rooms := service.NewRoomService(mockRoomRepo)
	lifecycle := service.NewLifecycleService(mockRoomRepo, mockAssetStore, rooms, testRetention)
	ctx := context.Background()

	records := []domain.RoomRecord{
		{ID: 1, Name: "almost-stale", LastModified: time.Now().Add(-29 * 24 * time.Hour)},
	}
	mockRoomRepo.On("ListAll", ctx).Return(records, nil).Once()

	// Act
	report, err := lifecycle.Sweep(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Swept)
	mockRoomRepo.AssertNotCalled(t, "DeleteByName", mock.Anything, mock.Anything)
	mockAssetStore.AssertNotCalled(t, "RemoveRoom", mock.Anything, mock.Anything)
}

func TestLifecycleService_Sweep_IsolatesPerRoomFailure(t *testing.T) {
	// Arrange: 第一个房间删除失败，第二个必须照常清扫
	mockRoomRepo := new(mocks.RoomRepository)
	mockAssetStore := new(mocks.AssetStore)
	rooms := service.NewRoomService(mockRoomRepo)
	lifecycle := service.NewLifecycleService(mockRoomRepo, mockAssetStore, rooms, testRetention)
	ctx := context.Background()

	records := []domain.RoomRecord{
		{ID: 1, Name: "stubborn-room", LastModified: time.Now().Add(-60 * 24 * time.Hour)},
		{ID: 2, Name: "stale-room", LastModified: time.Now().Add(-60 * 24 * time.Hour)},
	}
	mockRoomRepo.On("ListAll", ctx).Return(records, nil).Once()
	mockRoomRepo.On("DeleteByName", ctx, "stubborn-room").Return(errors.New("db down")).Once()
	mockRoomRepo.On("DeleteByName", ctx, "stale-room").Return(nil).Once()
	mockAssetStore.On("RemoveRoom", ctx, "stale-room").Return(nil).Once()

	// Act
	report, err := lifecycle.Sweep(ctx)

	// Assert: 单房间失败不中断整轮
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Swept)
	assert.Equal(t, 1, report.Failed)
	// 记录删除失败的房间不应再动素材目录
	mockAssetStore.AssertNotCalled(t, "RemoveRoom", mock.Anything, "stubborn-room")
	mockRoomRepo.AssertExpectations(t)
	mockAssetStore.AssertExpectations(t)
}

func TestLifecycleService_Sweep_AssetRemovalFailureStillCounts(t *testing.T) {
	// Arrange: 记录已删，素材目录删除失败只记警告，下一轮不会重试该房间
	mockRoomRepo := new(mocks.RoomRepository)
	mockAssetStore := new(mocks.AssetStore)
	rooms := service.NewRoomService(mockRoomRepo)
	lifecycle := service.NewLifecycleService(mockRoomRepo, mockAssetStore, rooms, testRetention)
	ctx := context.Background()

	records := []domain.RoomRecord{
		{ID: 1, Name: "stale-room", LastModified: time.Now().Add(-31 * 24 * time.Hour)},
	}
	mockRoomRepo.On("ListAll", ctx).Return(records, nil).Once()
	mockRoomRepo.On("DeleteByName", ctx, "stale-room").Return(nil).Once()
	mockAssetStore.On("RemoveRoom", ctx, "stale-room").Return(errors.New("disk error")).Once()

	// Act
	report, err := lifecycle.Sweep(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, report.Swept)
	assert.Equal(t, 0, report.Failed)
	mockRoomRepo.AssertExpectations(t)
	mockAssetStore.AssertExpectations(t)
}

func TestLifecycleService_Sweep_ListFailureAborts(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	mockAssetStore := new(mocks.AssetStore)
	rooms := service.NewRoomService(mockRoomRepo)
	lifecycle := service.NewLifecycleService(mockRoomRepo, mockAssetStore, rooms, testRetention)
	ctx := context.Background()

	mockRoomRepo.On("ListAll", ctx).Return(nil, errors.New("db down")).Once()

	// Act
	report, err := lifecycle.Sweep(ctx)

	// Assert
	require.Error(t, err)
	assert.Equal(t, service.SweepReport{}, report)
	mockRoomRepo.AssertNotCalled(t, "DeleteByName", mock.Anything, mock.Anything)
}
