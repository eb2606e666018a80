package repository

import (
	"context"
	"io"
)

// AssetStore 定义了按房间隔离的二进制资产存储。
// 返回的引用串是不透明的，原样嵌入元素数据，由前端拼接访问路径。
type AssetStore interface {
	// Save 保存一个资产并返回其稳定引用串。
	// filename 只用于继承扩展名，存储名由实现生成。
	Save(ctx context.Context, roomName, filename string, content io.Reader) (string, error)

	// RemoveRoom 递归删除一个房间的全部资产；目录不存在视为成功。
	RemoveRoom(ctx context.Context, roomName string) error
}
