package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	accountdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/account/domain"
	accountrepository "github.com/harvardinformatics/ifxbilling-sub000/internal/account/repository"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/clock"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/fiine/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/fiine/mock"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSync(t *testing.T) (*SyncService, *mock.MockAccountSource, *testutil.Fixture) {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	f := testutil.Seed(t, db, node)

	ctrl := gomock.NewController(t)
	source := mock.NewMockAccountSource(ctrl)

	svc := NewSyncService(SyncParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clock.NewFakeClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)),
		Source:      source,
		AccountRepo: accountrepository.Provide(),
	})
	return svc, source, f
}

func TestSyncUserUpsertsAndInvalidates(t *testing.T) {
	svc, source, f := newSync(t)
	ctx := context.Background()

	f.AuthorizeAccount(t, f.Account.ID)
	old := f.AddAccount(t, "370-00000-0000-000000-000000-0000-00000", f.Org.ID)
	f.AuthorizeAccount(t, old.ID)

	source.EXPECT().UserAccounts(gomock.Any(), "sslurpiston").Return([]domain.RemoteAuthorization{
		{
			Account: domain.RemoteAccount{
				Code:         f.Account.Code,
				Name:         "renamed code",
				AccountType:  accountdomain.AccountTypeExpenseCode,
				Organization: "Kitchen Lab",
				Active:       true,
			},
			IsValid: true,
		},
		{
			Account: domain.RemoteAccount{
				Code:         "PO-1234",
				Name:         "kitchen po",
				AccountType:  accountdomain.AccountTypePO,
				Organization: "Kitchen Lab",
				Active:       true,
			},
			IsValid: true,
		},
		{
			Account: domain.RemoteAccount{
				Code:         "PO-9999",
				AccountType:  accountdomain.AccountTypePO,
				Organization: "Nowhere Lab",
				Active:       true,
			},
			IsValid: true,
		},
	}, nil)

	res, err := svc.SyncUser(ctx, "sslurpiston")
	require.NoError(t, err)
	assert.Equal(t, 1, res.AccountsCreated)
	assert.Equal(t, 1, res.AccountsUpdated)
	assert.Equal(t, 2, res.Authorizations)
	assert.Equal(t, int64(1), res.Invalidated)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], `unknown organization "Nowhere Lab"`)

	var renamed accountdomain.Account
	require.NoError(t, f.DB.First(&renamed, "id = ?", f.Account.ID).Error)
	assert.Equal(t, "renamed code", renamed.Name)

	var po accountdomain.Account
	require.NoError(t, f.DB.First(&po, "code = ?", "PO-1234").Error)
	assert.Equal(t, f.Org.ID, po.OrganizationID)

	var stale accountdomain.UserAccount
	require.NoError(t, f.DB.First(&stale, "user_id = ? AND account_id = ?", f.User.ID, old.ID).Error)
	assert.False(t, stale.IsValid)

	var fresh accountdomain.UserAccount
	require.NoError(t, f.DB.First(&fresh, "user_id = ? AND account_id = ?", f.User.ID, po.ID).Error)
	assert.True(t, fresh.IsValid)
}

func TestSyncUserUnknownLocalUser(t *testing.T) {
	svc, _, _ := newSync(t)

	_, err := svc.SyncUser(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
}

func TestSyncUserSourceFailureChangesNothing(t *testing.T) {
	svc, source, f := newSync(t)
	f.AuthorizeAccount(t, f.Account.ID)

	source.EXPECT().UserAccounts(gomock.Any(), "sslurpiston").
		Return(nil, ierr.NewError("fiine returned 502").Mark(ierr.ErrExternal))

	_, err := svc.SyncUser(context.Background(), "sslurpiston")
	require.Error(t, err)
	assert.True(t, ierr.IsExternal(err))

	var ua accountdomain.UserAccount
	require.NoError(t, f.DB.First(&ua, "user_id = ? AND account_id = ?", f.User.ID, f.Account.ID).Error)
	assert.True(t, ua.IsValid)
}

func TestSyncAllCollectsPerUserErrors(t *testing.T) {
	svc, source, f := newSync(t)

	require.NoError(t, f.DB.Create(&accountdomain.ProductUser{
		ID:       f.Node.Generate(),
		Username: "aaronk",
		FullName: "Aaron K",
	}).Error)

	source.EXPECT().UserAccounts(gomock.Any(), "aaronk").
		Return(nil, ierr.NewError("fiine has no user aaronk").Mark(ierr.ErrNotFound))
	source.EXPECT().UserAccounts(gomock.Any(), "sslurpiston").Return([]domain.RemoteAuthorization{
		{
			Account: domain.RemoteAccount{
				Code:         f.Account.Code,
				Name:         f.Account.Name,
				AccountType:  accountdomain.AccountTypeExpenseCode,
				Organization: "Kitchen Lab",
				Active:       true,
			},
			IsValid: true,
		},
	}, nil)

	res, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Users)
	assert.Equal(t, 1, res.Authorizations)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "aaronk")
}
