package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tidwall/gjson"

	"collaborative-canvas/internal/domain"
	handler "collaborative-canvas/internal/handler/http"
	"collaborative-canvas/internal/hub"
	"collaborative-canvas/internal/repository"
	"collaborative-canvas/internal/repository/mocks"
	"collaborative-canvas/internal/service"
)

// newRoomRig 组装带 mock 存储的 RoomHandler 路由。
func newRoomRig(t *testing.T) (*mocks.RoomRepository, *gin.Engine, *service.RoomService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mockRepo := new(mocks.RoomRepository)
	rooms := service.NewRoomService(mockRepo)
	access := service.NewAccessService(rooms)
	collab := service.NewCollaborationService(rooms, access)
	h := hub.NewHub(rooms, access, collab)
	roomHandler := handler.NewRoomHandler(rooms, access, mockRepo, h)

	r := gin.New()
	api := r.Group("/api")
	api.GET("/rooms/new-name", roomHandler.NewName)
	api.GET("/rooms/:name", roomHandler.Info)
	api.PUT("/rooms/:name/access", roomHandler.UpdateAccess)
	api.GET("/rooms/:name/status", roomHandler.Status)
	return mockRepo, r, rooms
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// --- 测试 NewName 接口 ---

func TestRoomHandler_NewName_ReturnsAvailableName(t *testing.T) {
	// Arrange
	mockRepo, r, rooms := newRoomRig(t)
	mockRepo.On("ExistsByName", mock.Anything, mock.AnythingOfType("string")).Return(false, nil).Once()

	// Act
	w := doJSON(r, http.MethodGet, "/api/rooms/new-name", "")

	// Assert: 生成的名字本身要能通过标识符校验
	assert.Equal(t, http.StatusOK, w.Code)
	name := gjson.GetBytes(w.Body.Bytes(), "name").String()
	assert.NotEmpty(t, name)
	assert.NoError(t, rooms.ValidateName(name))
	mockRepo.AssertExpectations(t)
}

// --- 测试 Info 接口 ---

func TestRoomHandler_Info_UnknownRoom(t *testing.T) {
	// Arrange
	mockRepo, r, _ := newRoomRig(t)
	mockRepo.On("FindByName", mock.Anything, "quiet-star-7").Return(nil, repository.ErrRoomNotFound).Once()

	// Act
	w := doJSON(r, http.MethodGet, "/api/rooms/quiet-star-7", "")

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"quiet-star-7","exists":false,"protected":false}`, w.Body.String())
}

func TestRoomHandler_Info_ProtectedRoom(t *testing.T) {
	// Arrange
	mockRepo, r, _ := newRoomRig(t)
	record := &domain.RoomRecord{Name: "quiet-star-7"}
	err := record.SetDocument(domain.RoomDocument{Protected: true, EditPassword: "$2a$10$placeholder"})
	assert.NoError(t, err)
	mockRepo.On("FindByName", mock.Anything, "quiet-star-7").Return(record, nil).Once()

	// Act
	w := doJSON(r, http.MethodGet, "/api/rooms/quiet-star-7", "")

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"quiet-star-7","exists":true,"protected":true}`, w.Body.String())
}

func TestRoomHandler_Info_LegacyPasswordCountsAsProtected(t *testing.T) {
	// Arrange: 旧版记录只有明文 password 字段
	mockRepo, r, _ := newRoomRig(t)
	record := &domain.RoomRecord{Name: "old-board-1", Data: `{"elements":[],"password":"secret"}`}
	mockRepo.On("FindByName", mock.Anything, "old-board-1").Return(record, nil).Once()

	// Act
	w := doJSON(r, http.MethodGet, "/api/rooms/old-board-1", "")

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"old-board-1","exists":true,"protected":true}`, w.Body.String())
}

func TestRoomHandler_Info_InvalidIdentifier(t *testing.T) {
	// Arrange
	mockRepo, r, _ := newRoomRig(t)

	// Act
	w := doJSON(r, http.MethodGet, "/api/rooms/under_score", "")

	// Assert: 非法标识符不触碰存储
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockRepo.AssertNotCalled(t, "FindByName", mock.Anything, mock.Anything)
}

// --- 测试 UpdateAccess 接口 ---

func TestRoomHandler_UpdateAccess_EnablesProtection(t *testing.T) {
	// Arrange
	mockRepo, r, _ := newRoomRig(t)
	mockRepo.On("FindByName", mock.Anything, "quiet-star-7").Return(nil, repository.ErrRoomNotFound).Once()
	mockRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.RoomRecord")).Return(nil).Once()

	// Act
	w := doJSON(r, http.MethodPut, "/api/rooms/quiet-star-7/access",
		`{"editPassword":"adm","viewPassword":"ro","protected":true}`)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gjson.GetBytes(w.Body.Bytes(), "protected").Bool())
	mockRepo.AssertExpectations(t)
}

func TestRoomHandler_UpdateAccess_WrongCurrentPassword(t *testing.T) {
	// Arrange: 先经由接口开启保护
	mockRepo, r, _ := newRoomRig(t)
	mockRepo.On("FindByName", mock.Anything, "quiet-star-7").Return(nil, repository.ErrRoomNotFound).Once()
	mockRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.RoomRecord")).Return(nil).Once()
	w := doJSON(r, http.MethodPut, "/api/rooms/quiet-star-7/access",
		`{"editPassword":"adm","protected":true}`)
	assert.Equal(t, http.StatusOK, w.Code)

	// Act: 出示错误的当前凭据
	w = doJSON(r, http.MethodPut, "/api/rooms/quiet-star-7/access",
		`{"currentPassword":"wrong","editPassword":"new","protected":true}`)

	// Assert: 403，且没有第二次 Save
	assert.Equal(t, http.StatusForbidden, w.Code)
	mockRepo.AssertExpectations(t)
}

func TestRoomHandler_UpdateAccess_ProtectionRequiresEditPassword(t *testing.T) {
	// Arrange
	mockRepo, r, _ := newRoomRig(t)
	mockRepo.On("FindByName", mock.Anything, "quiet-star-7").Return(nil, repository.ErrRoomNotFound).Once()

	// Act: 开保护但不给 full-access 凭据
	w := doJSON(r, http.MethodPut, "/api/rooms/quiet-star-7/access", `{"protected":true}`)

	// Assert
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRoomHandler_UpdateAccess_MalformedBody(t *testing.T) {
	// Arrange
	_, r, _ := newRoomRig(t)

	// Act
	w := doJSON(r, http.MethodPut, "/api/rooms/quiet-star-7/access", `not-json`)

	// Assert
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- 测试 Status 接口 ---

func TestRoomHandler_Status_NotLoaded(t *testing.T) {
	// Arrange
	mockRepo, r, _ := newRoomRig(t)

	// Act
	w := doJSON(r, http.MethodGet, "/api/rooms/quiet-star-7/status", "")

	// Assert: 未加载的房间不触碰存储
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"loaded":false,"elements":0,"layers":0,"users":0,"connections":0,"timestamp":0}`, w.Body.String())
	mockRepo.AssertNotCalled(t, "FindByName", mock.Anything, mock.Anything)
}

func TestRoomHandler_Status_LoadedRoom(t *testing.T) {
	// Arrange: 先把房间拉进内存
	mockRepo, r, rooms := newRoomRig(t)
	mockRepo.On("FindByName", mock.Anything, "quiet-star-7").Return(nil, repository.ErrRoomNotFound).Once()
	err := rooms.WithRoom(context.Background(), "quiet-star-7", func(room *domain.Room) error { return nil })
	assert.NoError(t, err)

	// Act
	w := doJSON(r, http.MethodGet, "/api/rooms/quiet-star-7/status", "")

	// Assert: 新房间有一个缺省图层、零元素
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.Bytes()
	assert.True(t, gjson.GetBytes(body, "loaded").Bool())
	assert.Equal(t, int64(0), gjson.GetBytes(body, "elements").Int())
	assert.Equal(t, int64(1), gjson.GetBytes(body, "layers").Int())
	assert.Equal(t, int64(0), gjson.GetBytes(body, "connections").Int())
}
