package domain

import "time"

// Role 表示一次加入所解析出的写权限等级。
// 角色在 join 时绑定到连接上，之后不可变更。
type Role string

const (
	RoleFullAccess Role = "full-access" // 可执行全部操作
	RoleReadOnly   Role = "read-only"   // 仅可执行只读效果操作
)

// CanWrite 报告该角色是否允许结构性写操作。
func (r Role) CanWrite() bool { return r == RoleFullAccess }

// Element 表示画布上的一个可视对象，由其所在房间独占拥有。
type Element struct {
	ID       string  `json:"id"`                 // 元素唯一标识符
	Kind     string  `json:"kind,omitempty"`     // 形状类型，例如 "rect", "text", "image"
	X        float64 `json:"x"`                  // 画布坐标
	Y        float64 `json:"y"`
	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`
	Rotation float64 `json:"rotation,omitempty"` // 旋转角度 (度)
	Color    string  `json:"color,omitempty"`
	Text     string  `json:"text,omitempty"`    // 文本类元素的内容
	Asset    string  `json:"asset,omitempty"`   // 资产存储返回的不透明引用
	LayerID  string  `json:"layerId,omitempty"` // 所属图层 ID，至多一个
}

// Layer 表示元素的有序分组。
// Elements 成员列表是 z 序/分组的权威来源，不是派生索引。
type Layer struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Visible  bool     `json:"visible"`
	Locked   bool     `json:"locked"`
	Elements []string `json:"elements"` // 有序的元素 ID 成员列表
}

// Camera 表示房间的平移/缩放快照，只保留最新值。
type Camera struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// RoomUser 是房间用户目录中的一条记录，由 userInfo 事件创建/刷新。
type RoomUser struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	LastSeen time.Time `json:"lastSeen"`
}

// DefaultLayerID 是自愈/迁移时合成的缺省图层 ID。
const DefaultLayerID = "layer-default"

// NewDefaultLayer 构造缺省图层，成员列表为给定的元素 ID 序列。
func NewDefaultLayer(memberIDs []string) Layer {
	members := make([]string, len(memberIDs))
	copy(members, memberIDs)
	return Layer{
		ID:       DefaultLayerID,
		Name:     "Layer 1",
		Visible:  true,
		Elements: members,
	}
}

// Room 是协作的隔离单元：一个房间持有权威的内存内画布状态。
// 凭据字段存储的是 bcrypt 散列，绝不回传给任何客户端。
type Room struct {
	Name         string    // 已通过标识符校验的房间名
	Elements     []Element // 有序的元素集合
	Layers       []Layer   // 图层集合，任何时刻至少一个
	Camera       Camera
	EditPassword string    // full-access 凭据散列
	ViewPassword string    // read-only 凭据散列
	Protected    bool      // 保护开关；关闭时任何人都是 full-access
	Timestamp    int64     // 最近一次变更的标记 (unix 毫秒)
	LastModified time.Time // 保留期时钟，persist 时刷新
}

// NewRoom 返回一个全新初始化的房间：一个缺省图层、空元素集、未开启保护。
func NewRoom(name string) *Room {
	return &Room{
		Name:         name,
		Elements:     []Element{},
		Layers:       []Layer{NewDefaultLayer(nil)},
		Camera:       Camera{Zoom: 1},
		LastModified: time.Now(),
	}
}

// EnsureLayers 在任何操作前自愈图层集合：
// 若图层缺失或为空，用一个收纳当前全部元素的缺省图层替代。
func (r *Room) EnsureLayers() {
	if len(r.Layers) > 0 {
		return
	}
	ids := make([]string, 0, len(r.Elements))
	for _, el := range r.Elements {
		ids = append(ids, el.ID)
	}
	r.Layers = []Layer{NewDefaultLayer(ids)}
}

// Touch 刷新最近变更标记。
func (r *Room) Touch(now time.Time) {
	r.Timestamp = now.UnixMilli()
}

// FindElement 按 ID 查找元素，返回指向集合内元素的指针；未找到返回 nil。
func (r *Room) FindElement(id string) *Element {
	for i := range r.Elements {
		if r.Elements[i].ID == id {
			return &r.Elements[i]
		}
	}
	return nil
}

// FindLayer 按 ID 查找图层；未找到返回 nil。
func (r *Room) FindLayer(id string) *Layer {
	for i := range r.Layers {
		if r.Layers[i].ID == id {
			return &r.Layers[i]
		}
	}
	return nil
}

// AttachToLayer 将元素 ID 追加到指定图层的成员列表，已存在则不重复（幂等）。
// 图层不存在时不做任何事。
func (r *Room) AttachToLayer(layerID, elementID string) {
	layer := r.FindLayer(layerID)
	if layer == nil {
		return
	}
	for _, id := range layer.Elements {
		if id == elementID {
			return
		}
	}
	layer.Elements = append(layer.Elements, elementID)
}

// DetachEverywhere 将元素 ID 从所有图层的成员列表中移除。
func (r *Room) DetachEverywhere(elementID string) {
	for i := range r.Layers {
		members := r.Layers[i].Elements
		kept := members[:0]
		for _, id := range members {
			if id != elementID {
				kept = append(kept, id)
			}
		}
		r.Layers[i].Elements = kept
	}
}
