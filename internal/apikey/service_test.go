package apikey

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aris-project/aris/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := gdb.AutoMigrate(&models.User{}, &models.ApiKey{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func seedUser(t *testing.T, gdb *gorm.DB, name string, admin bool) *models.User {
	t.Helper()
	u := &models.User{UserName: name, PasswordHash: "x", IsAdmin: admin}
	if err := gdb.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestGenerateCapAndCounter(t *testing.T) {
	gdb := openTestDB(t)
	u := seedUser(t, gdb, "alice", false)
	svc := NewService(gdb, 0)

	for i := 0; i < maxKeysPerUser; i++ {
		key, err := svc.Generate(context.Background(), u.UID)
		if err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
		if !strings.HasPrefix(key.Secret, "sk-") {
			t.Fatalf("secret = %q", key.Secret)
		}
	}
	if _, err := svc.Generate(context.Background(), u.UID); !errors.Is(err, ErrTooMany) {
		t.Fatalf("err = %v, want ErrTooMany", err)
	}

	var got models.User
	if err := gdb.First(&got, "uid = ?", u.UID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if got.AkNum != maxKeysPerUser {
		t.Fatalf("ak_num = %d, want %d", got.AkNum, maxKeysPerUser)
	}

	// Revoking frees a slot and decrements the counter.
	keys, err := svc.List(context.Background(), u.UID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := svc.Revoke(context.Background(), u.UID, false, keys[0].AkID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Generate(context.Background(), u.UID); err != nil {
		t.Fatalf("generate after revoke: %v", err)
	}
	gdb.First(&got, "uid = ?", u.UID)
	if got.AkNum != maxKeysPerUser {
		t.Fatalf("ak_num = %d after revoke+generate, want %d", got.AkNum, maxKeysPerUser)
	}
}

func TestGenerateStampsExpiry(t *testing.T) {
	gdb := openTestDB(t)
	u := seedUser(t, gdb, "dave", false)
	svc := NewService(gdb, 30*24*time.Hour)

	key, err := svc.Generate(context.Background(), u.UID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if key.DeleteAt == nil {
		t.Fatalf("expiry not stamped")
	}
	left := time.Until(*key.DeleteAt)
	if left < 29*24*time.Hour || left > 31*24*time.Hour {
		t.Fatalf("expiry %v from now, want ~30 days", left)
	}

	// A freshly issued key with a future expiry is still live.
	if _, err := svc.Authenticate(context.Background(), key.Secret); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
}

func TestExpiredKeysDoNotCount(t *testing.T) {
	gdb := openTestDB(t)
	u := seedUser(t, gdb, "bob", false)
	svc := NewService(gdb, 0)

	past := time.Now().Add(-time.Hour)
	for i := 0; i < maxKeysPerUser; i++ {
		if err := gdb.Create(&models.ApiKey{UID: u.UID, Secret: "sk-expired-" + string(rune('a'+i)), DeleteAt: &past}).Error; err != nil {
			t.Fatalf("seed expired key: %v", err)
		}
	}

	if _, err := svc.Generate(context.Background(), u.UID); err != nil {
		t.Fatalf("generate: %v", err)
	}
	keys, err := svc.List(context.Background(), u.UID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("live keys = %d, want 1", len(keys))
	}
}

func TestRevokePermissions(t *testing.T) {
	gdb := openTestDB(t)
	owner := seedUser(t, gdb, "owner", false)
	other := seedUser(t, gdb, "other", false)
	svc := NewService(gdb, 0)

	key, err := svc.Generate(context.Background(), owner.UID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if err := svc.Revoke(context.Background(), other.UID, false, key.AkID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign revoke err = %v, want ErrNotFound", err)
	}
	// An admin may revoke anyone's key.
	if err := svc.Revoke(context.Background(), other.UID, true, key.AkID); err != nil {
		t.Fatalf("admin revoke: %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	gdb := openTestDB(t)
	u := seedUser(t, gdb, "carol", false)
	svc := NewService(gdb, 0)

	key, err := svc.Generate(context.Background(), u.UID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	got, err := svc.Authenticate(context.Background(), key.Secret)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.UID != u.UID {
		t.Fatalf("uid = %d, want %d", got.UID, u.UID)
	}

	if _, err := svc.Authenticate(context.Background(), "sk-bogus"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bogus err = %v, want ErrNotFound", err)
	}

	if err := svc.Revoke(context.Background(), u.UID, false, key.AkID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), key.Secret); !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoked err = %v, want ErrNotFound", err)
	}
}
