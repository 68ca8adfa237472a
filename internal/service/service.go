package service

import (
	"github.com/GlebRadaev/walletledger/internal/config"
	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/GlebRadaev/walletledger/internal/pg"
	"github.com/GlebRadaev/walletledger/internal/repo"
	"github.com/GlebRadaev/walletledger/internal/service/auditservice"
	"github.com/GlebRadaev/walletledger/internal/service/ledgerservice"
	"github.com/GlebRadaev/walletledger/internal/service/transferservice"
	"github.com/GlebRadaev/walletledger/internal/service/walletservice"
)

type Services struct {
	WalletService   *walletservice.Service
	LedgerService   *ledgerservice.Service
	AuditService    *auditservice.Service
	TransferService *transferservice.Service
}

func New(cfg *config.Config, repo *repo.Repositories, txManager pg.TXManager, notifier transferservice.Notifier) *Services {
	loc := cfg.Location()
	currency := domain.Currency(cfg.DefaultCurrency)

	auditService := auditservice.New(repo.AuditRepo)
	walletService := walletservice.New(repo.WalletRepo, txManager, auditService, walletservice.Defaults{
		Currency:     currency,
		DailyLimit:   cfg.DefaultDailyLimit,
		MonthlyLimit: cfg.DefaultMonthlyLimit,
	}, loc)
	ledgerService := ledgerservice.New(repo.TransactionRepo, loc)
	transferService := transferservice.New(
		walletService, ledgerService, txManager, notifier, auditService, currency, cfg.CommitRetries,
	)

	return &Services{
		WalletService:   walletService,
		LedgerService:   ledgerService,
		AuditService:    auditService,
		TransferService: transferService,
	}
}
