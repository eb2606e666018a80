package repository

import (
	"context"

	"collaborative-canvas/internal/domain"
)

// RoomRepository 定义了房间持久化记录的存储和检索操作。
type RoomRepository interface {
	// FindByName 根据房间名查找记录。
	// 如果记录不存在，应返回明确的错误 repository.ErrRoomNotFound。
	FindByName(ctx context.Context, name string) (*domain.RoomRecord, error)

	// Save 保存房间记录。
	// 按唯一的房间名插入或更新 (upsert)，一个房间名只对应一条记录。
	Save(ctx context.Context, record *domain.RoomRecord) error

	// ListAll 列出全部房间记录。
	// 主要供保留期扫描遍历使用。
	ListAll(ctx context.Context) ([]domain.RoomRecord, error)

	// DeleteByName 删除指定房间名的记录；记录本就不存在不算错误。
	DeleteByName(ctx context.Context, name string) error

	// ExistsByName 检查房间名是否已有持久化记录。
	ExistsByName(ctx context.Context, name string) (bool, error)
}
