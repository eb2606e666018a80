package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DocumentSchemaVersion 是当前房间文档的结构版本号。
// 早于该版本的记录在加载时由 MigrateDocument 升级。
const DocumentSchemaVersion = 2

// RoomRecord 是房间在持久化存储中的记录，一个房间名对应一条。
type RoomRecord struct {
	ID           uint      `gorm:"primaryKey"`                                    // 记录主键
	Name         string    `gorm:"type:varchar(191);uniqueIndex:idx_room_name;not null"` // 房间名，全局唯一
	Data         string    `gorm:"type:longtext;not null"`                        // 房间文档的 JSON 字符串 (longtext 以容纳大画布)
	LastModified time.Time `gorm:"index"`                                         // 保留期时钟，清理扫描按此判断
	CreatedAt    time.Time `gorm:"autoCreateTime"`                                // 记录创建时间 (GORM 自动填充)
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`                                // 记录最后更新时间 (GORM 自动填充)
}

// RoomDocument 是房间状态的序列化形态，即 RoomRecord.Data 的结构。
// 旧版记录可能只有扁平的 elements 列表和单一的 password 字段，
// 缺失的字段由 MigrateDocument 补齐。
type RoomDocument struct {
	SchemaVersion int       `json:"schemaVersion,omitempty"`
	Elements      []Element `json:"elements"`
	Layers        []Layer   `json:"layers,omitempty"`
	Camera        Camera    `json:"camera"`
	EditPassword  string    `json:"editPassword,omitempty"` // full-access 凭据散列
	ViewPassword  string    `json:"viewPassword,omitempty"` // read-only 凭据散列
	Protected     bool      `json:"protected,omitempty"`
	Timestamp     int64     `json:"timestamp,omitempty"`

	// LegacyPassword 是旧版的单一明文口令字段，仅在迁移时读取，写出时恒为空。
	LegacyPassword string `json:"password,omitempty"`
}

// ParseDocument 将记录的 Data 字段 (JSON 字符串) 解析为 RoomDocument。
// 空数据返回零值文档而不是错误。
func (rec *RoomRecord) ParseDocument() (RoomDocument, error) {
	var doc RoomDocument
	if rec.Data == "" || rec.Data == "null" {
		return doc, nil
	}
	if err := json.Unmarshal([]byte(rec.Data), &doc); err != nil {
		return RoomDocument{}, fmt.Errorf("failed to unmarshal room document for %q: %w", rec.Name, err)
	}
	return doc, nil
}

// SetDocument 将 RoomDocument 序列化为 JSON 字符串并写入记录的 Data 字段。
func (rec *RoomRecord) SetDocument(doc RoomDocument) error {
	bytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal room document for %q: %w", rec.Name, err)
	}
	rec.Data = string(bytes)
	return nil
}

// Document 导出房间当前状态的文档形态，用于持久化。
func (r *Room) Document() RoomDocument {
	return RoomDocument{
		SchemaVersion: DocumentSchemaVersion,
		Elements:      r.Elements,
		Layers:        r.Layers,
		Camera:        r.Camera,
		EditPassword:  r.EditPassword,
		ViewPassword:  r.ViewPassword,
		Protected:     r.Protected,
		Timestamp:     r.Timestamp,
	}
}

// RoomFromDocument 用已迁移到当前版本的文档重建内存内房间。
func RoomFromDocument(name string, doc RoomDocument, lastModified time.Time) *Room {
	room := &Room{
		Name:         name,
		Elements:     doc.Elements,
		Layers:       doc.Layers,
		Camera:       doc.Camera,
		EditPassword: doc.EditPassword,
		ViewPassword: doc.ViewPassword,
		Protected:    doc.Protected,
		Timestamp:    doc.Timestamp,
		LastModified: lastModified,
	}
	if room.Elements == nil {
		room.Elements = []Element{}
	}
	room.EnsureLayers()
	return room
}
