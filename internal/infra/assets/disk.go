// Package assets 提供 repository.AssetStore 的本地磁盘实现。
package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskAssetStore 将资产存放在 <baseDir>/<roomName>/<uuid><ext>。
// 返回的引用串就是存储文件名；调用方负责保证 roomName 已通过标识符校验。
type DiskAssetStore struct {
	baseDir string
}

// NewDiskAssetStore 创建磁盘资产存储并确保根目录存在。
func NewDiskAssetStore(baseDir string) (*DiskAssetStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("assets: base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("assets: create base directory '%s': %w", baseDir, err)
	}
	return &DiskAssetStore{baseDir: baseDir}, nil
}

// Save 保存资产内容，返回稳定引用串。
func (s *DiskAssetStore) Save(ctx context.Context, roomName, filename string, content io.Reader) (string, error) {
	roomDir := filepath.Join(s.baseDir, roomName)
	if err := os.MkdirAll(roomDir, 0o755); err != nil {
		return "", fmt.Errorf("assets: create room directory '%s': %w", roomName, err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 {
		// 异常长的“扩展名”按无扩展名处理
		ext = ""
	}
	ref := uuid.NewString() + ext
	path := filepath.Join(roomDir, ref)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("assets: create asset file: %w", err)
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		os.Remove(path) // 不保留半截文件
		return "", fmt.Errorf("assets: write asset file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("assets: close asset file: %w", err)
	}
	return ref, nil
}

// RemoveRoom 递归删除一个房间的资产目录；目录不存在视为成功。
func (s *DiskAssetStore) RemoveRoom(ctx context.Context, roomName string) error {
	if roomName == "" {
		// 空房间名会指向根目录本身，绝不允许
		return fmt.Errorf("assets: room name is required")
	}
	if err := os.RemoveAll(filepath.Join(s.baseDir, roomName)); err != nil {
		return fmt.Errorf("assets: remove room directory '%s': %w", roomName, err)
	}
	return nil
}
