package domain

// MigrateDocument 将旧版房间文档升级到当前结构版本。
// 纯函数，不做任何 I/O：
//   - 没有图层集合的旧版扁平元素列表 → 合成一个收纳全部元素的缺省图层；
//   - 旧版单一明文口令 → 经 hash 转换为 full-access 凭据散列并开启保护；
//   - 版本号盖章为 DocumentSchemaVersion。
//
// 返回升级后的文档以及是否发生过迁移。hash 仅在存在旧版口令时被调用。
func MigrateDocument(doc RoomDocument, hash func(plain string) (string, error)) (RoomDocument, bool, error) {
	migrated := false

	if len(doc.Layers) == 0 {
		ids := make([]string, 0, len(doc.Elements))
		for _, el := range doc.Elements {
			ids = append(ids, el.ID)
		}
		doc.Layers = []Layer{NewDefaultLayer(ids)}
		migrated = true
	}

	if doc.LegacyPassword != "" {
		if doc.EditPassword == "" {
			hashed, err := hash(doc.LegacyPassword)
			if err != nil {
				return RoomDocument{}, false, err
			}
			doc.EditPassword = hashed
			doc.Protected = true
		}
		doc.LegacyPassword = ""
		migrated = true
	}

	if doc.SchemaVersion != DocumentSchemaVersion {
		doc.SchemaVersion = DocumentSchemaVersion
		migrated = true
	}
	return doc, migrated, nil
}
