package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/walletledger/internal/config"
	"github.com/GlebRadaev/walletledger/internal/pg"
	"github.com/GlebRadaev/walletledger/internal/repo"
	"github.com/GlebRadaev/walletledger/internal/service/auditservice"
	"github.com/GlebRadaev/walletledger/internal/service/ledgerservice"
	"github.com/GlebRadaev/walletledger/internal/service/walletservice"
)

func TestNew(t *testing.T) {
	ctrl := gomock.NewController(t)

	repos := &repo.Repositories{
		WalletRepo:      walletservice.NewMockRepo(ctrl),
		TransactionRepo: ledgerservice.NewMockRepo(ctrl),
		AuditRepo:       auditservice.NewMockRepo(ctrl),
	}
	cfg := &config.Config{
		Timezone:            "UTC",
		DefaultCurrency:     "VND",
		DefaultDailyLimit:   decimal.NewFromInt(50000000),
		DefaultMonthlyLimit: decimal.NewFromInt(1000000000),
		CommitRetries:       3,
	}

	services := New(cfg, repos, pg.NewMockTXManager(ctrl), nil)

	assert.NotNil(t, services.WalletService)
	assert.NotNil(t, services.LedgerService)
	assert.NotNil(t, services.AuditService)
	assert.NotNil(t, services.TransferService)
}
