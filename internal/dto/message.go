package dto

import (
	"encoding/json"

	"github.com/samber/lo"

	"collaborative-canvas/internal/domain"
)

// Envelope 是双向 WebSocket 消息的统一信封：
// { "type": <操作类型>, "data": <类型相关载荷> }。
// move/cursor/shapeSelect/shapeRelease 等仅转发的载荷不在此解码，原样中继。
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope 构造并序列化一条服务端事件。
func NewEnvelope(kind domain.OpKind, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: string(kind), Data: data})
}

// JoinPayload 是 join 操作的载荷。Password 可选，仅在房间开启保护时参与角色解析。
type JoinPayload struct {
	RoomName string `json:"roomName" validate:"required"`
	Password string `json:"password,omitempty"`
}

// ElementDTO 承载一个完整元素 (add、paste、fullSync)。
type ElementDTO struct {
	ID       string  `json:"id" validate:"required,max=64"`
	Kind     string  `json:"kind,omitempty" validate:"max=32"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`
	Color    string  `json:"color,omitempty" validate:"max=64"`
	Text     string  `json:"text,omitempty" validate:"max=4096"`
	Asset    string  `json:"asset,omitempty" validate:"max=128"`
	LayerID  string  `json:"layerId,omitempty" validate:"max=64"`
}

// ToDomain 转换为领域元素。
func (d ElementDTO) ToDomain() domain.Element {
	return domain.Element{
		ID:       d.ID,
		Kind:     d.Kind,
		X:        d.X,
		Y:        d.Y,
		Width:    d.Width,
		Height:   d.Height,
		Rotation: d.Rotation,
		Color:    d.Color,
		Text:     d.Text,
		Asset:    d.Asset,
		LayerID:  d.LayerID,
	}
}

// ElementsToDomain 批量转换元素 DTO。
func ElementsToDomain(dtos []ElementDTO) []domain.Element {
	return lo.Map(dtos, func(item ElementDTO, _ int) domain.Element {
		return item.ToDomain()
	})
}

// ElementPatch 是 update 操作的浅合并载荷：只有出现的字段会被并入目标元素。
type ElementPatch struct {
	ID       string   `json:"id" validate:"required,max=64"`
	Kind     *string  `json:"kind,omitempty" validate:"omitempty,max=32"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	Color    *string  `json:"color,omitempty" validate:"omitempty,max=64"`
	Text     *string  `json:"text,omitempty" validate:"omitempty,max=4096"`
	Asset    *string  `json:"asset,omitempty" validate:"omitempty,max=128"`
	LayerID  *string  `json:"layerId,omitempty" validate:"omitempty,max=64"`
}

// ApplyTo 将补丁中出现的字段并入元素本体。
func (p ElementPatch) ApplyTo(el *domain.Element) {
	if p.Kind != nil {
		el.Kind = *p.Kind
	}
	if p.X != nil {
		el.X = *p.X
	}
	if p.Y != nil {
		el.Y = *p.Y
	}
	if p.Width != nil {
		el.Width = *p.Width
	}
	if p.Height != nil {
		el.Height = *p.Height
	}
	if p.Rotation != nil {
		el.Rotation = *p.Rotation
	}
	if p.Color != nil {
		el.Color = *p.Color
	}
	if p.Text != nil {
		el.Text = *p.Text
	}
	if p.Asset != nil {
		el.Asset = *p.Asset
	}
	if p.LayerID != nil {
		el.LayerID = *p.LayerID
	}
}

// DeletePayload 是 delete 操作的载荷。
type DeletePayload struct {
	ID string `json:"id" validate:"required,max=64"`
}

// PastePayload 是 paste 操作的载荷：一批整体加入的元素。
type PastePayload struct {
	Elements []ElementDTO `json:"elements" validate:"required,min=1,max=500,dive"`
}

// FullSyncPayload 是客户端撤销/重做的对账载荷。
// 指针语义为三态：nil 表示对应集合保持不变，非 nil（含空切片）表示整体替换。
type FullSyncPayload struct {
	Elements *[]ElementDTO `json:"elements,omitempty" validate:"omitempty,dive"`
	Layers   *[]LayerDTO   `json:"layers,omitempty" validate:"omitempty,dive"`
}

// LayerDTO 承载一个完整图层 (addLayer、fullSync)。
type LayerDTO struct {
	ID       string   `json:"id" validate:"required,max=64"`
	Name     string   `json:"name" validate:"max=128"`
	Visible  bool     `json:"visible"`
	Locked   bool     `json:"locked"`
	Elements []string `json:"elements" validate:"omitempty,dive,max=64"`
}

// ToDomain 转换为领域图层。
func (d LayerDTO) ToDomain() domain.Layer {
	members := d.Elements
	if members == nil {
		members = []string{}
	}
	return domain.Layer{
		ID:       d.ID,
		Name:     d.Name,
		Visible:  d.Visible,
		Locked:   d.Locked,
		Elements: members,
	}
}

// LayersToDomain 批量转换图层 DTO。
func LayersToDomain(dtos []LayerDTO) []domain.Layer {
	return lo.Map(dtos, func(item LayerDTO, _ int) domain.Layer {
		return item.ToDomain()
	})
}

// LayerPatch 是 updateLayer 操作的浅合并载荷。
// Elements 非 nil 时整体替换成员列表（成员列表是权威 z 序，不做逐项合并）。
type LayerPatch struct {
	ID       string    `json:"id" validate:"required,max=64"`
	Name     *string   `json:"name,omitempty" validate:"omitempty,max=128"`
	Visible  *bool     `json:"visible,omitempty"`
	Locked   *bool     `json:"locked,omitempty"`
	Elements *[]string `json:"elements,omitempty" validate:"omitempty,dive,max=64"`
}

// ApplyTo 将补丁中出现的字段并入图层本体。
func (p LayerPatch) ApplyTo(layer *domain.Layer) {
	if p.Name != nil {
		layer.Name = *p.Name
	}
	if p.Visible != nil {
		layer.Visible = *p.Visible
	}
	if p.Locked != nil {
		layer.Locked = *p.Locked
	}
	if p.Elements != nil {
		layer.Elements = append([]string{}, (*p.Elements)...)
	}
}

// DeleteLayerPayload 是 deleteLayer 操作的载荷。
type DeleteLayerPayload struct {
	ID string `json:"id" validate:"required,max=64"`
}

// CameraPayload 是 camera 操作的载荷，整体替换房间的相机快照。
type CameraPayload struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// UserInfoPayload 是 userInfo 在场通告的载荷。
type UserInfoPayload struct {
	UserID string `json:"userId" validate:"required,max=64"`
	Name   string `json:"name" validate:"max=64"`
}

// InitPayload 是 join 成功后发给当事连接的净化状态快照。
// 凭据字段绝不出现在这里：客户端只能得知保护开关与自己的角色。
type InitPayload struct {
	Elements  []domain.Element `json:"elements"`
	Layers    []domain.Layer   `json:"layers"`
	Camera    domain.Camera    `json:"camera"`
	Protected bool             `json:"protected"`
	Role      domain.Role      `json:"role"`
	Timestamp int64            `json:"timestamp"`
}

// ErrorPayload 是仅发给当事连接的拒绝原因。
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PresencePayload 是 userJoined/userLeft 广播的载荷，Count 为目录内的最新人数。
type PresencePayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Count  int    `json:"count"`
}
