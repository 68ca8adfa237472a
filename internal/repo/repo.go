package repo

import (
	"github.com/GlebRadaev/walletledger/internal/pg"
	auditrepo "github.com/GlebRadaev/walletledger/internal/repo/audit-repo"
	transactionrepo "github.com/GlebRadaev/walletledger/internal/repo/transaction-repo"
	walletrepo "github.com/GlebRadaev/walletledger/internal/repo/wallet-repo"
	"github.com/GlebRadaev/walletledger/internal/service/auditservice"
	"github.com/GlebRadaev/walletledger/internal/service/ledgerservice"
	"github.com/GlebRadaev/walletledger/internal/service/walletservice"
)

type Repositories struct {
	WalletRepo      walletservice.Repo
	TransactionRepo ledgerservice.Repo
	AuditRepo       auditservice.Repo
}

func New(conn pg.Database) *Repositories {
	return &Repositories{
		WalletRepo:      walletrepo.New(conn),
		TransactionRepo: transactionrepo.New(conn),
		AuditRepo:       auditrepo.New(conn),
	}
}
