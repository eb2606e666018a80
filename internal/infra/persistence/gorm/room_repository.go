package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByName 实现根据房间名查找记录
func (r *GormRoomRepository) FindByName(ctx context.Context, name string) (*domain.RoomRecord, error) {
	var record domain.RoomRecord
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound // 映射为定义的仓库层错误
		}
		return nil, fmt.Errorf("gorm: find room by name '%s': %w", name, err)
	}
	return &record, nil
}

// Save 实现保存房间记录（按唯一房间名 upsert）
// 同名记录已存在时只更新文档与保留期时钟，主键和创建时间保持不变。
func (r *GormRoomRepository) Save(ctx context.Context, record *domain.RoomRecord) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "last_modified", "updated_at"}),
		}).
		Create(record).Error
	if err != nil {
		// --- 健壮的唯一约束检查 (以 MySQL 为例) ---
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		// --- 检查结束 ---
		return fmt.Errorf("gorm: save room record '%s': %w", record.Name, err)
	}
	return nil
}

// ListAll 实现列出全部房间记录
func (r *GormRoomRepository) ListAll(ctx context.Context) ([]domain.RoomRecord, error) {
	var records []domain.RoomRecord
	err := r.db.WithContext(ctx).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list room records: %w", err)
	}
	return records, nil
}

// DeleteByName 实现按房间名删除记录
// 记录不存在时 RowsAffected 为 0，不视为错误。
func (r *GormRoomRepository) DeleteByName(ctx context.Context, name string) error {
	err := r.db.WithContext(ctx).Where("name = ?", name).Delete(&domain.RoomRecord{}).Error
	if err != nil {
		return fmt.Errorf("gorm: delete room record '%s': %w", name, err)
	}
	return nil
}

// ExistsByName 实现检查房间名是否已有记录
func (r *GormRoomRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var count int64
	// 使用 Count() 优化查询，只查询数量
	err := r.db.WithContext(ctx).Model(&domain.RoomRecord{}).Where("name = ?", name).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count room records by name '%s': %w", name, err)
	}
	return count > 0, nil
}
