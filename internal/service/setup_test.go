package service

import (
	"fmt"
	"testing"

	"backend/internal/database"
	"backend/internal/docproc"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

type testEnv struct {
	db        *gorm.DB
	uploadDir string

	txManager      repository.TransactionManager
	userRepo       repository.UserRepository
	requestRepo    repository.RequestRepository
	approvalRepo   repository.ApprovalRepository
	validationRepo repository.ValidationRepository
	auditRepo      repository.AuditRepository

	requests  RequestService
	approvals ApprovalService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	uploadDir := t.TempDir()
	log := zap.NewNop()

	env := &testEnv{
		db:             db,
		uploadDir:      uploadDir,
		txManager:      repository.NewTransactionManager(db),
		userRepo:       repository.NewUserRepository(db),
		requestRepo:    repository.NewRequestRepository(db),
		approvalRepo:   repository.NewApprovalRepository(db),
		validationRepo: repository.NewValidationRepository(db),
		auditRepo:      repository.NewAuditRepository(db),
	}

	generator := docproc.NewPOGenerator(uploadDir, log)
	env.requests = NewRequestService(env.txManager, env.requestRepo, env.userRepo, env.auditRepo, uploadDir, nil, log)
	env.approvals = NewApprovalService(env.txManager, env.requestRepo, env.approvalRepo, env.auditRepo, env.userRepo, generator, docproc.POFormatJSON, nil, log)
	return env
}

func seedUser(t *testing.T, db *gorm.DB, username, role string) *model.User {
	t.Helper()
	user := &model.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "hash",
		Role:     role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
