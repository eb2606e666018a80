package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"collaborative-canvas/internal/domain"
)

// AccessService 负责访问控制：join 时的角色解析、逐事件的操作鉴权、
// 以及房间凭据的更新。凭据只以 bcrypt 散列形式存在。
type AccessService struct {
	rooms *RoomService
}

// NewAccessService 创建 AccessService 实例。
func NewAccessService(rooms *RoomService) *AccessService {
	if rooms == nil {
		panic("RoomService cannot be nil for AccessService")
	}
	return &AccessService{rooms: rooms}
}

// ResolveRole 从房间保护设置与本次出示的凭据解析角色。
// 未开启保护的房间无条件授予 full-access。开启保护时：
// full-access 凭据匹配 → full-access；read-only 凭据匹配 → read-only；
// 否则返回 ErrAuthenticationRejected，join 必须失败且不发送任何状态。
func (s *AccessService) ResolveRole(room *domain.Room, supplied string) (domain.Role, error) {
	if !room.Protected {
		return domain.RoleFullAccess, nil
	}
	if room.EditPassword != "" && checkCredential(supplied, room.EditPassword) {
		return domain.RoleFullAccess, nil
	}
	if room.ViewPassword != "" && checkCredential(supplied, room.ViewPassword) {
		return domain.RoleReadOnly, nil
	}
	logrus.WithFields(logrus.Fields{
		"component": "access_service",
		"room":      room.Name,
	}).Warn("Join attempt rejected: credential mismatch")
	return "", ErrAuthenticationRejected
}

// Authorize 判定角色能否执行指定操作。
// 写操作仅限 full-access；只读效果操作与未知类型对任何角色放行。
func (s *AccessService) Authorize(role domain.Role, kind domain.OpKind) error {
	if kind.IsWrite() && !role.CanWrite() {
		return ErrPermissionDenied
	}
	return nil
}

// CredentialUpdate 描述一次凭据更新请求。
// Protected 为 false 时两个凭据都被清空；为 true 时 EditPassword 必填。
type CredentialUpdate struct {
	CurrentPassword string
	EditPassword    string
	ViewPassword    string
	Protected       bool
}

// UpdateCredentials 更新房间的凭据与保护开关。
// 已开启保护的房间必须先出示当前 full-access 凭据。
// 凭据变更必须落盘成功才算生效，持久化失败在这里上抛而非吞掉。
func (s *AccessService) UpdateCredentials(ctx context.Context, roomName string, update CredentialUpdate) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"component": "access_service",
		"room":      roomName,
	})

	return s.rooms.WithRoom(ctx, roomName, func(room *domain.Room) error {
		if room.Protected && !checkCredential(update.CurrentPassword, room.EditPassword) {
			logCtx.Warn("Credential update rejected: current credential mismatch")
			return ErrCredentialMismatch
		}
		if update.Protected && update.EditPassword == "" {
			return ErrInvalidCredentialUpdate
		}

		if update.Protected {
			editHash, err := hashCredential(update.EditPassword)
			if err != nil {
				logCtx.WithError(err).Error("Failed to hash full-access credential")
				return ErrInternalServer
			}
			viewHash := ""
			if update.ViewPassword != "" {
				viewHash, err = hashCredential(update.ViewPassword)
				if err != nil {
					logCtx.WithError(err).Error("Failed to hash read-only credential")
					return ErrInternalServer
				}
			}
			room.EditPassword = editHash
			room.ViewPassword = viewHash
			room.Protected = true
		} else {
			room.EditPassword = ""
			room.ViewPassword = ""
			room.Protected = false
		}
		room.Touch(time.Now())

		if err := s.rooms.PersistLocked(ctx, room); err != nil {
			logCtx.WithError(err).Error("Failed to persist credential update")
			return ErrInternalServer
		}
		logCtx.Info("Room credentials updated")
		return nil
	})
}

// --- 私有辅助函数 ---

// hashCredential 使用 bcrypt 对房间凭据进行哈希处理
func hashCredential(plain string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to generate hash from credential: %w", err)
	}
	return string(bytes), nil
}

// checkCredential 验证出示的凭据是否与存储的哈希匹配
func checkCredential(plain, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	return err == nil
}
