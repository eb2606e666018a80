package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/dto"
)

// validate 校验带 validate 标签的事件载荷（update 浅合并的已知缺口由此补上）。
var validate = validator.New()

// Session 描述一条已完成 join 的连接在分发时需要的事实。
type Session struct {
	RoomName string
	Role     domain.Role
	UserID   string // 日志用，可能为空（连接尚未发送 userInfo）
}

// CollaborationService 是变更分发器：对每条入站事件执行
// 鉴权 → 按类型合并 → (写操作) 等待持久化 → 广播入队，
// 全程持有房间互斥锁，同一房间的事件严格串行。
type CollaborationService struct {
	rooms  *RoomService
	access *AccessService
}

// NewCollaborationService 创建 CollaborationService 实例。
func NewCollaborationService(rooms *RoomService, access *AccessService) *CollaborationService {
	if rooms == nil || access == nil {
		panic("RoomService and AccessService must be non-nil for CollaborationService")
	}
	return &CollaborationService{rooms: rooms, access: access}
}

// Apply 在房间互斥锁内完整处理一条事件。
// raw 是完整的信封字节，转发时原样中继；emit 在锁内被调用，
// 因此每个对端的投递顺序与本房间的处理顺序一致。
// 返回的错误只会是用户可见分类（ErrPermissionDenied 等）；
// 不可解码的消息与持久化失败在这里记录日志后吞掉。
func (s *CollaborationService) Apply(ctx context.Context, sess Session, raw []byte, emit func(payload []byte)) error {
	kindStr := gjson.GetBytes(raw, "type").String()
	logCtx := logrus.WithFields(logrus.Fields{
		"component": "collaboration_service",
		"room":      sess.RoomName,
		"user":      sess.UserID,
		"kind":      kindStr,
	})

	if kindStr == "" {
		// 没有类型标签：不可解码，丢弃且不保证回复
		logCtx.Warn("Dropping message without a type tag")
		return nil
	}
	kind := domain.OpKind(kindStr)
	if kind == domain.OpJoin {
		// join 只允许作为连接的第一条消息由注册表处理；
		// 载荷携带凭据，绝不能进入广播路径
		logCtx.Warn("Dropping join event on an already-bound connection")
		return nil
	}
	data := []byte(gjson.GetBytes(raw, "data").Raw)

	return s.rooms.WithRoom(ctx, sess.RoomName, func(room *domain.Room) error {
		// 1. 鉴权：写操作需要 full-access 角色
		if err := s.access.Authorize(sess.Role, kind); err != nil {
			logCtx.Warn("Write event denied for read-only role")
			return err
		}

		// 2. 按类型合并到房间状态
		mutated, err := applyKind(room, kind, data)
		if err != nil {
			logCtx.WithError(err).Warn("Dropping undecodable event payload")
			return nil
		}
		if mutated {
			room.Touch(time.Now())
		}

		// 3. 写操作先等待持久化再广播，保证同房间内写与广播不乱序；
		//    写失败只记录，内存状态与广播照常
		if kind.PersistenceWorthy() {
			if err := s.rooms.PersistLocked(ctx, room); err != nil {
				logCtx.WithError(err).Error("Failed to persist room state, broadcast proceeds")
			}
		}

		// 4. 转发给同房间的其余连接
		emit(raw)
		return nil
	})
}

// applyKind 将事件按其类型的合并规则应用到房间状态，返回状态是否被修改。
// 未知类型是向前兼容的仅广播空操作，永远不报错。
func applyKind(room *domain.Room, kind domain.OpKind, data []byte) (bool, error) {
	switch kind {
	case domain.OpAdd:
		var payload dto.ElementDTO
		if err := decodePayload(data, &payload); err != nil {
			return false, err
		}
		applyAdd(room, payload.ToDomain())
		return true, nil

	case domain.OpUpdate:
		var patch dto.ElementPatch
		if err := decodePayload(data, &patch); err != nil {
			return false, err
		}
		return applyUpdate(room, patch), nil

	case domain.OpDelete:
		var payload dto.DeletePayload
		if err := decodePayload(data, &payload); err != nil {
			return false, err
		}
		return applyDelete(room, payload.ID), nil

	case domain.OpClear:
		applyClear(room)
		return true, nil

	case domain.OpFullSync:
		var payload dto.FullSyncPayload
		if err := decodePayload(data, &payload); err != nil {
			return false, err
		}
		applyFullSync(room, payload)
		return true, nil

	case domain.OpPaste:
		var payload dto.PastePayload
		if err := decodePayload(data, &payload); err != nil {
			return false, err
		}
		for _, el := range payload.Elements {
			applyAdd(room, el.ToDomain())
		}
		return true, nil

	case domain.OpAddLayer:
		var payload dto.LayerDTO
		if err := decodePayload(data, &payload); err != nil {
			return false, err
		}
		return applyAddLayer(room, payload.ToDomain()), nil

	case domain.OpDeleteLayer:
		var payload dto.DeleteLayerPayload
		if err := decodePayload(data, &payload); err != nil {
			return false, err
		}
		return applyDeleteLayer(room, payload.ID), nil

	case domain.OpUpdateLayer:
		var patch dto.LayerPatch
		if err := decodePayload(data, &patch); err != nil {
			return false, err
		}
		return applyUpdateLayer(room, patch), nil

	case domain.OpCamera:
		var payload dto.CameraPayload
		if err := decodePayload(data, &payload); err != nil {
			return false, err
		}
		room.Camera = domain.Camera{X: payload.X, Y: payload.Y, Zoom: payload.Zoom}
		return true, nil

	case domain.OpUserInfo:
		// 目录更新与 userJoined 广播由会话注册表完成，这里只做载荷校验
		var payload dto.UserInfoPayload
		if err := decodePayload(data, &payload); err != nil {
			return false, err
		}
		return false, nil

	case domain.OpMove, domain.OpCursor, domain.OpShapeSelect, domain.OpShapeRelease:
		// 仅转发的实时信号，不触碰房间状态
		return false, nil

	default:
		return false, nil
	}
}

// decodePayload 解码并校验一个类型化载荷。
func decodePayload(data []byte, out interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	return nil
}

// --- 各操作类型的合并规则 ---

// applyAdd 追加元素；声明了图层时将元素 ID 幂等地挂入该图层的成员列表。
func applyAdd(room *domain.Room, el domain.Element) {
	room.Elements = append(room.Elements, el)
	if el.LayerID != "" {
		room.AttachToLayer(el.LayerID, el.ID)
	}
}

// applyUpdate 将补丁浅合并到既有元素上；ID 未知时为空操作。
func applyUpdate(room *domain.Room, patch dto.ElementPatch) bool {
	el := room.FindElement(patch.ID)
	if el == nil {
		return false
	}
	patch.ApplyTo(el)
	return true
}

// applyDelete 按 ID 移除元素，并从所有图层的成员列表中清除该 ID。
func applyDelete(room *domain.Room, id string) bool {
	removed := false
	kept := lo.Filter(room.Elements, func(el domain.Element, _ int) bool {
		if el.ID == id {
			removed = true
			return false
		}
		return true
	})
	room.Elements = kept
	room.DetachEverywhere(id)
	return removed
}

// applyClear 清空元素集合与每个图层的成员列表；图层本体保留。
func applyClear(room *domain.Room) {
	room.Elements = []domain.Element{}
	for i := range room.Layers {
		room.Layers[i].Elements = []string{}
	}
}

// applyFullSync 用载荷中出现的集合整体替换对应集合（客户端撤销/重做对账）。
// nil 集合保持不变；替换后图层可能为空，立即自愈以维持至少一层的约束。
func applyFullSync(room *domain.Room, payload dto.FullSyncPayload) {
	if payload.Elements != nil {
		room.Elements = dto.ElementsToDomain(*payload.Elements)
	}
	if payload.Layers != nil {
		room.Layers = dto.LayersToDomain(*payload.Layers)
	}
	room.EnsureLayers()
}

// applyAddLayer 追加图层；同 ID 图层已存在时为空操作（幂等）。
func applyAddLayer(room *domain.Room, layer domain.Layer) bool {
	if room.FindLayer(layer.ID) != nil {
		return false
	}
	room.Layers = append(room.Layers, layer)
	return true
}

// applyDeleteLayer 级联删除图层：图层拥有的元素（成员列表并上
// 以其为 LayerID 的元素）随图层一并删除，且不得残留在任何成员列表中。
func applyDeleteLayer(room *domain.Room, id string) bool {
	layer := room.FindLayer(id)
	if layer == nil {
		return false
	}

	owned := make(map[string]struct{}, len(layer.Elements))
	for _, elID := range layer.Elements {
		owned[elID] = struct{}{}
	}
	for i := range room.Elements {
		if room.Elements[i].LayerID == id {
			owned[room.Elements[i].ID] = struct{}{}
		}
	}

	room.Elements = lo.Filter(room.Elements, func(el domain.Element, _ int) bool {
		_, isOwned := owned[el.ID]
		return !isOwned
	})
	room.Layers = lo.Filter(room.Layers, func(l domain.Layer, _ int) bool {
		return l.ID != id
	})
	for elID := range owned {
		room.DetachEverywhere(elID)
	}
	return true
}

// applyUpdateLayer 将补丁浅合并到既有图层上；ID 未知时为空操作。
func applyUpdateLayer(room *domain.Room, patch dto.LayerPatch) bool {
	layer := room.FindLayer(patch.ID)
	if layer == nil {
		return false
	}
	patch.ApplyTo(layer)
	return true
}
