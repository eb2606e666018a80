package domain

// OpKind 是同步事件信封中的操作类型标签。
type OpKind string

// 客户端发起的操作类型。
const (
	// OpJoin 是连接上的第一条消息，绑定房间与角色。
	OpJoin OpKind = "join"

	// 结构性写操作，需要 full-access 角色，效果会被持久化。
	OpAdd         OpKind = "add"
	OpUpdate      OpKind = "update"
	OpDelete      OpKind = "delete"
	OpClear       OpKind = "clear"
	OpFullSync    OpKind = "fullSync"
	OpPaste       OpKind = "paste"
	OpAddLayer    OpKind = "addLayer"
	OpDeleteLayer OpKind = "deleteLayer"
	OpUpdateLayer OpKind = "updateLayer"

	// 只读效果操作，任何角色都允许，不参与持久化。
	OpCamera       OpKind = "camera"
	OpMove         OpKind = "move"
	OpCursor       OpKind = "cursor"
	OpShapeSelect  OpKind = "shapeSelect"
	OpShapeRelease OpKind = "shapeRelease"
	OpUserInfo     OpKind = "userInfo"
)

// 服务端发起的事件类型。心跳探测使用 WebSocket 协议层的 ping 帧，
// 不占用信封类型。
const (
	OpInit       OpKind = "init"       // join 成功后的状态快照
	OpError      OpKind = "error"      // 仅发给当事连接的拒绝原因
	OpUserJoined OpKind = "userJoined" // 在场人数增量
	OpUserLeft   OpKind = "userLeft"
)

var writeKinds = map[OpKind]struct{}{
	OpAdd:         {},
	OpUpdate:      {},
	OpDelete:      {},
	OpClear:       {},
	OpFullSync:    {},
	OpPaste:       {},
	OpAddLayer:    {},
	OpDeleteLayer: {},
	OpUpdateLayer: {},
}

// IsWrite 报告该操作是否为结构性写操作。
// 未知类型不算写操作：它们作为广播专用的空操作被放行（向前兼容）。
func (k OpKind) IsWrite() bool {
	_, ok := writeKinds[k]
	return ok
}

// PersistenceWorthy 报告该操作的效果是否必须在进程重启后保留。
// 与写操作划分完全一致：camera 只更新内存值，随下一次写操作落盘。
func (k OpKind) PersistenceWorthy() bool { return k.IsWrite() }
