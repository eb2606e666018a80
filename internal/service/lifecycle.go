package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/repository"
)

// SweepReport 汇总一次清扫的结果。
type SweepReport struct {
	Scanned int // 扫描到的房间记录数
	Swept   int // 成功删除的过期房间数
	Failed  int // 删除过程中出错的房间数
}

// LifecycleService 负责过期房间的保留期清扫：
// 删除数据库记录、房间的素材目录以及内存缓存条目。
type LifecycleService struct {
	roomRepo   repository.RoomRepository
	assetStore repository.AssetStore
	rooms      *RoomService
	retention  time.Duration
}

// NewLifecycleService 创建 LifecycleService 实例。retention 是不活跃保留期。
func NewLifecycleService(
	roomRepo repository.RoomRepository,
	assetStore repository.AssetStore,
	rooms *RoomService,
	retention time.Duration,
) *LifecycleService {
	if roomRepo == nil || assetStore == nil || rooms == nil {
		panic("RoomRepository, AssetStore and RoomService must be non-nil for LifecycleService")
	}
	if retention <= 0 {
		panic("retention must be positive for LifecycleService")
	}
	return &LifecycleService{
		roomRepo:   roomRepo,
		assetStore: assetStore,
		rooms:      rooms,
		retention:  retention,
	}
}

// Sweep 扫描全部房间记录并删除超过保留期未修改的房间。
// 单个房间的删除失败只记录并计数，不中断整轮清扫；
// 只有列举记录本身失败时才返回错误。
func (s *LifecycleService) Sweep(ctx context.Context) (SweepReport, error) {
	logCtx := logrus.WithField("component", "lifecycle_service")
	cutoff := time.Now().Add(-s.retention)

	records, err := s.roomRepo.ListAll(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list room records for sweep")
		return SweepReport{}, err
	}

	report := SweepReport{Scanned: len(records)}
	for _, record := range records {
		// 活跃度以 LastModified 为准，老记录没有该值时退回 CreatedAt
		staleness := record.LastModified
		if staleness.IsZero() {
			staleness = record.CreatedAt
		}
		if !staleness.Before(cutoff) {
			continue
		}

		roomCtx := logCtx.WithFields(logrus.Fields{
			"room":          record.Name,
			"last_modified": staleness.Format(time.RFC3339),
		})
		if err := s.sweepRoom(ctx, record.Name); err != nil {
			roomCtx.WithError(err).Error("Failed to sweep expired room")
			report.Failed++
			continue
		}
		roomCtx.Info("Swept expired room")
		report.Swept++
	}

	logCtx.WithFields(logrus.Fields{
		"scanned": report.Scanned,
		"swept":   report.Swept,
		"failed":  report.Failed,
	}).Info("Room retention sweep finished")
	return report, nil
}

// sweepRoom 删除单个房间的持久记录、素材目录与内存缓存。
// 记录删除失败即整体失败；素材目录删除失败只记警告，下一轮会重试。
func (s *LifecycleService) sweepRoom(ctx context.Context, name string) error {
	if err := s.roomRepo.DeleteByName(ctx, name); err != nil {
		return err
	}
	if err := s.assetStore.RemoveRoom(ctx, name); err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "lifecycle_service",
			"room":      name,
		}).WithError(err).Warn("Failed to remove asset directory for swept room")
	}
	s.rooms.Evict(name)
	return nil
}
