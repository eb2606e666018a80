package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
)

// roomNamePattern 是房间标识符策略：字母数字加连字符。
var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

const (
	roomNameMinLen = 3
	roomNameMaxLen = 50
)

// 人类可读房间名的词表，生成形如 "bright-room-7" 的名字。
var (
	nameAdjectives = []string{"bright", "calm", "swift", "quiet", "sunny", "brave", "gentle", "lively", "mellow", "vivid"}
	nameNouns      = []string{"room", "zone", "canvas", "board", "field", "harbor", "meadow", "studio", "garden", "summit"}
)

// roomEntry 将缓存中的房间与其互斥锁绑定。
// 锁覆盖 自愈→鉴权→应用→持久化→广播入队 的完整临界区，
// 保证同一房间的事件严格按接收顺序生效。
type roomEntry struct {
	mu   sync.Mutex
	room *domain.Room
}

// RoomService 是权威房间状态的唯一拥有者 (Room Store)。
// 内存缓存按房间名索引，进程启动时创建、随进程销毁，只能经由方法访问。
type RoomService struct {
	roomRepo repository.RoomRepository

	mu      sync.Mutex
	entries map[string]*roomEntry
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	return &RoomService{
		roomRepo: roomRepo,
		entries:  make(map[string]*roomEntry),
	}
}

// ValidateName 执行标识符策略：^[A-Za-z0-9-]+$，长度 3–50。
// 违反时返回 ErrInvalidIdentifier，调用方不得创建或加载任何房间。
func (s *RoomService) ValidateName(name string) error {
	if len(name) < roomNameMinLen || len(name) > roomNameMaxLen {
		return ErrInvalidIdentifier
	}
	if !roomNamePattern.MatchString(name) {
		return ErrInvalidIdentifier
	}
	return nil
}

// WithRoom 校验房间名、按需加载房间，然后在该房间的互斥锁内执行 fn。
// 所有对房间状态的读写都必须经由这里；fn 内可调用 PersistLocked。
func (s *RoomService) WithRoom(ctx context.Context, name string, fn func(room *domain.Room) error) error {
	if err := s.ValidateName(name); err != nil {
		return err
	}
	entry := s.entry(name)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.room == nil {
		room, err := s.load(ctx, name)
		if err != nil {
			return err
		}
		entry.room = room
	}
	// 任何操作执行前自愈图层集合
	entry.room.EnsureLayers()
	return fn(entry.room)
}

// Persist 刷新保留期时钟并将房间完整快照写入持久化存储。
// 房间不在内存中时为空操作。
func (s *RoomService) Persist(ctx context.Context, name string) error {
	s.mu.Lock()
	entry, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.room == nil {
		return nil
	}
	return s.PersistLocked(ctx, entry.room)
}

// PersistLocked 持久化一个已处于 WithRoom 临界区内的房间。
// 只能从 WithRoom 的回调中调用；错误由调用方决定记录还是上抛。
func (s *RoomService) PersistLocked(ctx context.Context, room *domain.Room) error {
	room.LastModified = time.Now()
	record := &domain.RoomRecord{
		Name:         room.Name,
		LastModified: room.LastModified,
	}
	if err := record.SetDocument(room.Document()); err != nil {
		return fmt.Errorf("encode room document: %w", err)
	}
	if err := s.roomRepo.Save(ctx, record); err != nil {
		return fmt.Errorf("save room record: %w", err)
	}
	return nil
}

// PersistAll 持久化全部缓存中的房间，进程优雅退出时调用。
func (s *RoomService) PersistAll(ctx context.Context) {
	s.mu.Lock()
	names := lo.Keys(s.entries)
	s.mu.Unlock()

	for _, name := range names {
		if err := s.Persist(ctx, name); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "room_service",
				"room":      name,
			}).WithError(err).Warn("Failed to persist room during shutdown")
		}
	}
}

// Get 只查内存、绝不触发加载，供状态读取路径使用。
// 返回的是浅拷贝：适合读取计数、开关与时间戳，不可用于修改。
func (s *RoomService) Get(name string) (*domain.Room, bool) {
	s.mu.Lock()
	entry, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.room == nil {
		return nil, false
	}
	snapshot := *entry.room
	return &snapshot, true
}

// Evict 将房间从内存缓存中移除（保留期清理或测试用）。
func (s *RoomService) Evict(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
}

// GenerateName 生成未被占用的人类可读房间名。
func (s *RoomService) GenerateName(ctx context.Context) (string, error) {
	const maxAttempts = 10

	b := make([]byte, 1)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		name := fmt.Sprintf("%s-%s-%d", lo.Sample(nameAdjectives), lo.Sample(nameNouns), int(b[0])%10)

		exists, err := s.roomRepo.ExistsByName(ctx, name)
		if err != nil {
			logrus.WithError(err).WithField("room", name).Error("Database error checking room name uniqueness")
			return "", fmt.Errorf("database error checking room name: %w", err)
		}
		if !exists {
			return name, nil
		}
		// 撞名，重试
		logrus.WithField("room", name).Debugf("Generated room name already exists, retrying (attempt %d)...", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique room name after %d attempts", maxAttempts)
}

// --- 私有辅助函数 ---

// entry 返回房间的缓存条目，不存在则先创建空条目。
func (s *RoomService) entry(name string) *roomEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		e = &roomEntry{}
		s.entries[name] = e
	}
	return e
}

// load 从持久化存储读出房间；没有记录时返回全新初始化的房间（成功而非错误）。
// 旧版记录在这里经由纯迁移函数升级，缺失的保留期时钟以当前时间补种。
func (s *RoomService) load(ctx context.Context, name string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"component": "room_service", "room": name})

	record, err := s.roomRepo.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Debug("No durable record, initializing fresh room")
			return domain.NewRoom(name), nil
		}
		logCtx.WithError(err).Error("Failed to read room record")
		return nil, ErrInternalServer
	}

	doc, err := record.ParseDocument()
	if err != nil {
		logCtx.WithError(err).Error("Room record holds an undecodable document")
		return nil, ErrInternalServer
	}
	doc, migrated, err := domain.MigrateDocument(doc, hashCredential)
	if err != nil {
		logCtx.WithError(err).Error("Failed to migrate legacy room document")
		return nil, ErrInternalServer
	}
	if migrated {
		logCtx.Info("Upgraded legacy room record on load")
	}

	lastModified := record.LastModified
	if lastModified.IsZero() {
		lastModified = time.Now()
	}
	return domain.RoomFromDocument(name, doc, lastModified), nil
}
