package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	// 导入内部包
	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/tasks"
)

// RoomSweepHandler 处理过期房间清理任务
type RoomSweepHandler struct {
	lifecycle *service.LifecycleService
}

// NewRoomSweepHandler 创建 Handler 实例
func NewRoomSweepHandler(lifecycle *service.LifecycleService) *RoomSweepHandler {
	if lifecycle == nil {
		panic("LifecycleService cannot be nil for RoomSweepHandler")
	}
	return &RoomSweepHandler{lifecycle: lifecycle}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RoomSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	// Task ID 通过 ResultWriter 获取，测试里直接构造的 Task 没有它
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})

	var payload tasks.RoomSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	logCtx.WithField("reason", payload.Reason).Info("Processing room sweep task...")

	report, err := h.lifecycle.Sweep(ctx)
	if err != nil {
		// 只有列举存储记录失败才走到这里，重试有意义
		logCtx.WithError(err).Error("Room sweep task failed")
		return fmt.Errorf("room sweep failed: %w", err)
	}

	if report.Failed > 0 {
		// 个别房间失败不触发任务重试，下一轮调度会再扫到它们
		logCtx.WithFields(logrus.Fields{
			"scanned": report.Scanned,
			"swept":   report.Swept,
			"failed":  report.Failed,
		}).Warn("Room sweep task finished with per-room failures")
		return nil
	}

	logCtx.WithFields(logrus.Fields{
		"scanned": report.Scanned,
		"swept":   report.Swept,
	}).Info("Room sweep task processed successfully")
	return nil
}
