package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/tasks"
)

// SweepEnqueuer 是 AdminHandler 需要的最小任务入队接口，*asynq.Client 原样满足。
type SweepEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AdminHandler 封装了运维接口的 HTTP 处理逻辑
type AdminHandler struct {
	asynqClient SweepEnqueuer
}

// NewAdminHandler 创建 AdminHandler 实例
func NewAdminHandler(asynqClient SweepEnqueuer) *AdminHandler {
	if asynqClient == nil {
		panic("Asynq client cannot be nil for AdminHandler")
	}
	return &AdminHandler{asynqClient: asynqClient}
}

// TriggerSweepResponse 定义手动触发清扫的响应结构体
type TriggerSweepResponse struct {
	Queued bool   `json:"queued"`
	TaskID string `json:"taskId,omitempty"`
}

// TriggerSweep 立即入队一次过期房间清扫。
// 与定时调度走同一个任务类型，由同一个 Worker 处理。
func (h *AdminHandler) TriggerSweep(c *gin.Context) {
	payload, err := tasks.NewRoomSweepTask("manual")
	if err != nil {
		logrus.WithError(err).Error("Handler.TriggerSweep: Failed to build task payload")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	task := asynq.NewTask(tasks.TypeRoomSweep, payload)
	info, err := h.asynqClient.EnqueueContext(c.Request.Context(), task, asynq.Queue("default"))
	if err != nil {
		logrus.WithError(err).Error("Handler.TriggerSweep: Failed to enqueue room sweep task")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	logrus.WithFields(logrus.Fields{"task_id": info.ID, "queue": info.Queue}).Info("Room sweep task enqueued")
	SuccessResponse(c, http.StatusAccepted, TriggerSweepResponse{Queued: true, TaskID: info.ID})
}
