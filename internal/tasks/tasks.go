package tasks

import (
	"encoding/json"
)

// 定义任务类型常量
const (
	TypeRoomSweep = "room:sweep" // 过期房间清理任务类型
)

// RoomSweepPayload 定义了房间清理任务的数据结构
type RoomSweepPayload struct {
	// Reason 记录任务来源，便于在日志里区分定时触发和手动触发
	Reason string `json:"reason"`
}

// NewRoomSweepTask 创建一个新的房间清理任务 payload
func NewRoomSweepTask(reason string) ([]byte, error) {
	payload := RoomSweepPayload{
		Reason: reason,
	}
	// 将 Payload 序列化为 JSON 字节
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	// Asynq 的 NewTask 直接接收 []byte payload，由调用方组装 Task
	return payloadBytes, nil
}
