package service

import "errors"

// 用户可见的错误分类。除此之外的错误（持久化失败、不可解码的消息）
// 只记录日志并吞掉，绝不打断任何房间的实时协作。
var (
	ErrInvalidIdentifier      = errors.New("invalid room identifier")
	ErrAuthenticationRejected = errors.New("authentication rejected")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrNotJoined              = errors.New("no room joined")

	ErrRoomNotFound            = errors.New("room not found")
	ErrCredentialMismatch      = errors.New("current credential mismatch")
	ErrInvalidCredentialUpdate = errors.New("protection requires a full-access credential")
	ErrInternalServer          = errors.New("internal server error")
)
