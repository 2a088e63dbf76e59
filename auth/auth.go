// Package auth stores users in SQLite and authenticates interactive
// sessions by role and password.
package auth

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// User 一个可登录的用户。空密码表示该角色免密。
type User struct {
	ID       uint   `gorm:"primaryKey"`
	Name     string `gorm:"uniqueIndex;size:64"`
	Role     string `gorm:"index;size:64"`
	Password string `gorm:"size:128"`
}

// ErrUnknownRole 角色在用户库中不存在
var ErrUnknownRole = errors.New("unknown role")

// ErrBadPassword 密码错误
var ErrBadPassword = errors.New("bad password")

// Store SQLite 用户库
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// defaultUsers 首次启动时播种的用户
var defaultUsers = []User{
	{Name: "guest", Role: "user", Password: ""},
	{Name: "alex", Role: "expert", Password: "alex"},
	{Name: "admin", Role: "admin", Password: "admin"},
}

// NewStore 打开（必要时创建）用户库并播种默认用户。
func NewStore(dbPath string, zlog *zap.Logger) (*Store, error) {
	if zlog == nil {
		zlog = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open user db %s: %w", dbPath, err)
	}

	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("migrate user db: %w", err)
	}

	s := &Store{
		db:     db,
		logger: zlog.With(zap.String("component", "auth_store")),
	}
	if err := s.seed(); err != nil {
		return nil, err
	}
	return s, nil
}

// seed 播种默认用户（已有同名用户跳过）
func (s *Store) seed() error {
	for _, u := range defaultUsers {
		var count int64
		if err := s.db.Model(&User{}).Where("name = ?", u.Name).Count(&count).Error; err != nil {
			return fmt.Errorf("check user %s: %w", u.Name, err)
		}
		if count > 0 {
			continue
		}
		if err := s.db.Create(&u).Error; err != nil {
			return fmt.Errorf("seed user %s: %w", u.Name, err)
		}
		s.logger.Info("seeded default user",
			zap.String("name", u.Name),
			zap.String("role", u.Role))
	}
	return nil
}

// FindByRole 按角色取用户。同角色多用户时取最早创建的。
func (s *Store) FindByRole(role string) (*User, error) {
	var u User
	err := s.db.Where("role = ?", role).Order("id").First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if err != nil {
		return nil, fmt.Errorf("find role %s: %w", role, err)
	}
	return &u, nil
}

// Authenticate 校验角色+密码。免密角色任何密码（含空）都通过。
func (s *Store) Authenticate(role, password string) (*User, error) {
	u, err := s.FindByRole(role)
	if err != nil {
		return nil, err
	}
	if u.Password != "" && u.Password != password {
		return nil, ErrBadPassword
	}
	return u, nil
}

// PasswordRequired 该角色是否需要密码。
func (s *Store) PasswordRequired(role string) (bool, error) {
	u, err := s.FindByRole(role)
	if err != nil {
		return false, err
	}
	return u.Password != "", nil
}

// Close 关闭底层连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
