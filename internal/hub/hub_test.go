package hub // 直接访问未导出的连接集合与发送队列

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/bcrypt"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
	"collaborative-canvas/internal/repository/mocks"
	"collaborative-canvas/internal/service"
)

// newHubRig 组装一套接到 Mock 存储上的完整 Hub。
func newHubRig(t *testing.T) (*mocks.RoomRepository, *Hub) {
	t.Helper()
	mockRoomRepo := new(mocks.RoomRepository)
	rooms := service.NewRoomService(mockRoomRepo)
	access := service.NewAccessService(rooms)
	collab := service.NewCollaborationService(rooms, access)
	return mockRoomRepo, NewHub(rooms, access, collab)
}

// expectFreshRoom 预设一个没有持久化记录的房间。
func expectFreshRoom(repo *mocks.RoomRepository, name string) {
	repo.On("FindByName", mock.Anything, name).Return(nil, repository.ErrRoomNotFound).Once()
}

// protectedRecord 构造一条受保护房间的持久化记录。
func protectedRecord(t *testing.T, name, editPass, viewPass string) *domain.RoomRecord {
	t.Helper()
	room := domain.NewRoom(name)
	room.Protected = true
	editHash, err := bcrypt.GenerateFromPassword([]byte(editPass), bcrypt.MinCost)
	require.NoError(t, err)
	room.EditPassword = string(editHash)
	if viewPass != "" {
		viewHash, err := bcrypt.GenerateFromPassword([]byte(viewPass), bcrypt.MinCost)
		require.NoError(t, err)
		room.ViewPassword = string(viewHash)
	}
	record := &domain.RoomRecord{Name: name, LastModified: time.Now()}
	require.NoError(t, record.SetDocument(room.Document()))
	return record
}

// drainFrames 取空一个客户端的发送队列，返回帧与队列是否已被关闭。
// 所有消息处理都是同步的，队列里的内容在 HandleMessage 返回时即已就绪。
func drainFrames(c *Client) (frames [][]byte, closed bool) {
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return frames, true
			}
			frames = append(frames, frame)
		default:
			return frames, false
		}
	}
}

// --- 测试 join 绑定 ---

func TestHub_JoinBindsAndRepliesInit(t *testing.T) {
	// Arrange
	mockRoomRepo, h := newHubRig(t)
	expectFreshRoom(mockRoomRepo, "bright-room-7")
	client := NewClient(h, nil)

	// Act
	h.HandleMessage(client, []byte(`{"type":"join","data":{"roomName":"bright-room-7"}}`))

	// Assert: 绑定建立且收到净化快照
	assert.True(t, client.Joined())
	assert.Equal(t, "bright-room-7", client.RoomName())
	assert.Equal(t, domain.RoleFullAccess, client.Role())
	assert.Equal(t, 1, h.ClientCount("bright-room-7"))

	frames, closedCh := drainFrames(client)
	require.Len(t, frames, 1)
	assert.False(t, closedCh)
	assert.Equal(t, "init", gjson.GetBytes(frames[0], "type").String())
	assert.Equal(t, "full-access", gjson.GetBytes(frames[0], "data.role").String())
	assert.False(t, gjson.GetBytes(frames[0], "data.protected").Bool())
	assert.True(t, gjson.GetBytes(frames[0], "data.layers").IsArray())
	assert.NotContains(t, string(frames[0]), "editPassword", "init 快照绝不能携带凭据")
	mockRoomRepo.AssertExpectations(t)
}

func TestHub_FirstMessageMustBeJoin(t *testing.T) {
	// Arrange
	mockRoomRepo, h := newHubRig(t)
	client := NewClient(h, nil)

	// Act: 未绑定就发写事件
	h.HandleMessage(client, []byte(`{"type":"add","data":{"id":"el-1"}}`))

	// Assert: notJoined 错误，事件被丢弃，连房间都不加载
	assert.False(t, client.Joined())
	frames, _ := drainFrames(client)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", gjson.GetBytes(frames[0], "type").String())
	assert.Equal(t, "notJoined", gjson.GetBytes(frames[0], "data.code").String())
	mockRoomRepo.AssertNotCalled(t, "FindByName", mock.Anything, mock.Anything)
}

func TestHub_JoinRejectedWithBadCredential(t *testing.T) {
	// Arrange: 受保护房间
	mockRoomRepo, h := newHubRig(t)
	mockRoomRepo.On("FindByName", mock.Anything, "guarded-room-1").
		Return(protectedRecord(t, "guarded-room-1", "adm", "ro"), nil).Once()
	client := NewClient(h, nil)

	// Act
	h.HandleMessage(client, []byte(`{"type":"join","data":{"roomName":"guarded-room-1","password":"wrong"}}`))

	// Assert: 拒绝、不注册、不泄露任何状态
	assert.False(t, client.Joined())
	assert.Equal(t, 0, h.ClientCount("guarded-room-1"))

	frames, closedCh := drainFrames(client)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", gjson.GetBytes(frames[0], "type").String())
	assert.Equal(t, "authenticationRejected", gjson.GetBytes(frames[0], "data.code").String())
	assert.True(t, closedCh, "拒绝后发送队列应被关闭")
}

func TestHub_JoinWithInvalidIdentifierRejected(t *testing.T) {
	// Arrange
	mockRoomRepo, h := newHubRig(t)
	client := NewClient(h, nil)

	// Act
	h.HandleMessage(client, []byte(`{"type":"join","data":{"roomName":"no spaces allowed"}}`))

	// Assert
	assert.False(t, client.Joined())
	frames, _ := drainFrames(client)
	require.Len(t, frames, 1)
	assert.Equal(t, "invalidIdentifier", gjson.GetBytes(frames[0], "data.code").String())
	mockRoomRepo.AssertNotCalled(t, "FindByName", mock.Anything, mock.Anything)
}

func TestHub_SecondJoinIgnored(t *testing.T) {
	// Arrange
	mockRoomRepo, h := newHubRig(t)
	expectFreshRoom(mockRoomRepo, "bright-room-7")
	client := NewClient(h, nil)
	h.HandleMessage(client, []byte(`{"type":"join","data":{"roomName":"bright-room-7"}}`))
	drainFrames(client)

	// Act: 已绑定的连接再次 join 另一个房间
	h.HandleMessage(client, []byte(`{"type":"join","data":{"roomName":"calm-zone-3"}}`))

	// Assert: 绑定不可变，消息被丢弃
	assert.Equal(t, "bright-room-7", client.RoomName())
	frames, _ := drainFrames(client)
	assert.Empty(t, frames)
	mockRoomRepo.AssertNotCalled(t, "FindByName", mock.Anything, "calm-zone-3")
}

// --- 测试广播扇出 ---

func TestHub_BroadcastExcludesOriginator(t *testing.T) {
	// Arrange: 同房间两条连接
	mockRoomRepo, h := newHubRig(t)
	expectFreshRoom(mockRoomRepo, "bright-room-7")
	mockRoomRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.RoomRecord")).Return(nil)

	alice := NewClient(h, nil)
	bob := NewClient(h, nil)
	h.HandleMessage(alice, []byte(`{"type":"join","data":{"roomName":"bright-room-7"}}`))
	h.HandleMessage(bob, []byte(`{"type":"join","data":{"roomName":"bright-room-7"}}`))
	drainFrames(alice)
	drainFrames(bob)

	raw := []byte(`{"type":"add","data":{"id":"el-1","layerId":"layer-default"}}`)

	// Act
	h.HandleMessage(alice, raw)

	// Assert: 对端原样收到，发起方不回声
	bobFrames, _ := drainFrames(bob)
	require.Len(t, bobFrames, 1)
	assert.Equal(t, raw, bobFrames[0])

	aliceFrames, _ := drainFrames(alice)
	assert.Empty(t, aliceFrames, "发起方不应收到自己的事件回声")
}

func TestHub_BroadcastIsolatedPerRoom(t *testing.T) {
	// Arrange: 两个房间各一条连接
	mockRoomRepo, h := newHubRig(t)
	expectFreshRoom(mockRoomRepo, "bright-room-7")
	expectFreshRoom(mockRoomRepo, "calm-zone-3")
	mockRoomRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.RoomRecord")).Return(nil)

	alice := NewClient(h, nil)
	carol := NewClient(h, nil)
	h.HandleMessage(alice, []byte(`{"type":"join","data":{"roomName":"bright-room-7"}}`))
	h.HandleMessage(carol, []byte(`{"type":"join","data":{"roomName":"calm-zone-3"}}`))
	drainFrames(alice)
	drainFrames(carol)

	// Act
	h.HandleMessage(alice, []byte(`{"type":"add","data":{"id":"el-1"}}`))

	// Assert
	carolFrames, _ := drainFrames(carol)
	assert.Empty(t, carolFrames, "事件不得跨房间泄露")
}

// --- 测试在场目录 ---

func TestHub_UserInfoPresenceFlow(t *testing.T) {
	// Arrange
	mockRoomRepo, h := newHubRig(t)
	expectFreshRoom(mockRoomRepo, "bright-room-7")

	alice := NewClient(h, nil)
	bob := NewClient(h, nil)
	h.HandleMessage(alice, []byte(`{"type":"join","data":{"roomName":"bright-room-7"}}`))
	h.HandleMessage(bob, []byte(`{"type":"join","data":{"roomName":"bright-room-7"}}`))
	drainFrames(alice)
	drainFrames(bob)

	// Act: alice 首次通告身份
	h.HandleMessage(alice, []byte(`{"type":"userInfo","data":{"userId":"u-1","name":"Ada"}}`))

	// Assert: 对端先收到转发的 userInfo，再收到 userJoined；发起方只收到 userJoined
	bobFrames, _ := drainFrames(bob)
	require.Len(t, bobFrames, 2)
	assert.Equal(t, "userInfo", gjson.GetBytes(bobFrames[0], "type").String())
	assert.Equal(t, "userJoined", gjson.GetBytes(bobFrames[1], "type").String())
	assert.Equal(t, "u-1", gjson.GetBytes(bobFrames[1], "data.userId").String())
	assert.Equal(t, int64(1), gjson.GetBytes(bobFrames[1], "data.count").Int())

	aliceFrames, _ := drainFrames(alice)
	require.Len(t, aliceFrames, 1)
	assert.Equal(t, "userJoined", gjson.GetBytes(aliceFrames[0], "type").String())

	users := h.Presence("bright-room-7")
	require.Len(t, users, 1)
	assert.Equal(t, "Ada", users[0].Name)

	// Act: 同一连接的后续 userInfo 只刷新目录
	h.HandleMessage(alice, []byte(`{"type":"userInfo","data":{"userId":"u-1","name":"Ada L"}}`))

	bobFrames, _ = drainFrames(bob)
	require.Len(t, bobFrames, 1, "重复通告不应再广播 userJoined")
	assert.Equal(t, "userInfo", gjson.GetBytes(bobFrames[0], "type").String())

	users = h.Presence("bright-room-7")
	require.Len(t, users, 1)
	assert.Equal(t, "Ada L", users[0].Name, "目录条目应被刷新")

	// Act: alice 断开
	h.HandleDisconnect(alice)

	// Assert: userLeft 带最新人数，目录条目消失
	bobFrames, _ = drainFrames(bob)
	require.Len(t, bobFrames, 1)
	assert.Equal(t, "userLeft", gjson.GetBytes(bobFrames[0], "type").String())
	assert.Equal(t, "u-1", gjson.GetBytes(bobFrames[0], "data.userId").String())
	assert.Equal(t, int64(0), gjson.GetBytes(bobFrames[0], "data.count").Int())
	assert.Empty(t, h.Presence("bright-room-7"))
	assert.Equal(t, 1, h.ClientCount("bright-room-7"))
}

func TestHub_DisconnectWithoutUserInfoLeavesNoTrace(t *testing.T) {
	// Arrange
	mockRoomRepo, h := newHubRig(t)
	expectFreshRoom(mockRoomRepo, "bright-room-7")

	alice := NewClient(h, nil)
	bob := NewClient(h, nil)
	h.HandleMessage(alice, []byte(`{"type":"join","data":{"roomName":"bright-room-7"}}`))
	h.HandleMessage(bob, []byte(`{"type":"join","data":{"roomName":"bright-room-7"}}`))
	drainFrames(alice)
	drainFrames(bob)

	// Act: 从未通告身份的连接断开
	h.HandleDisconnect(alice)

	// Assert: 没有 userLeft
	bobFrames, _ := drainFrames(bob)
	assert.Empty(t, bobFrames)
	assert.Equal(t, 1, h.ClientCount("bright-room-7"))
}

// --- 测试角色与拒绝路径 ---

func TestHub_ReadOnlyClientWriteRejected(t *testing.T) {
	// Arrange: viewer 用 read-only 凭据加入
	mockRoomRepo, h := newHubRig(t)
	mockRoomRepo.On("FindByName", mock.Anything, "guarded-room-1").
		Return(protectedRecord(t, "guarded-room-1", "adm", "ro"), nil).Once()

	editor := NewClient(h, nil)
	viewer := NewClient(h, nil)
	h.HandleMessage(editor, []byte(`{"type":"join","data":{"roomName":"guarded-room-1","password":"adm"}}`))
	h.HandleMessage(viewer, []byte(`{"type":"join","data":{"roomName":"guarded-room-1","password":"ro"}}`))
	require.Equal(t, domain.RoleReadOnly, viewer.Role())
	drainFrames(editor)
	drainFrames(viewer)

	// Act: viewer 尝试写
	h.HandleMessage(viewer, []byte(`{"type":"add","data":{"id":"el-1"}}`))

	// Assert: 只有当事连接收到 permissionDenied，房间其他人毫无感知
	viewerFrames, _ := drainFrames(viewer)
	require.Len(t, viewerFrames, 1)
	assert.Equal(t, "error", gjson.GetBytes(viewerFrames[0], "type").String())
	assert.Equal(t, "permissionDenied", gjson.GetBytes(viewerFrames[0], "data.code").String())

	editorFrames, _ := drainFrames(editor)
	assert.Empty(t, editorFrames)
	mockRoomRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}
