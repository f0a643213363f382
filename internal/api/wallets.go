package api

import (
	"context"
	"errors"
	"fmt"

	"travel-wallet-go/internal/clients"
	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/models"
	"travel-wallet-go/internal/money"
	"travel-wallet-go/internal/store"

	"go.uber.org/zap"
)

// EnsureWallet returns the user's wallet, creating it on first use.
func (s *WalletService) EnsureWallet(ctx context.Context, userId string) (*ledger.Wallet, error) {
	w, err := s.store.GetWalletByUserId(ctx, userId)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	w, err = ledger.NewWallet(userId, s.now())
	if err != nil {
		return nil, err
	}
	ids, err := s.execute(ctx, "create_wallet", func(ctx context.Context, uow *unitOfWork) error {
		if err := uow.repo.CreateWallet(ctx, w); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return fmt.Errorf("%w: user %s", ledger.ErrDuplicateWallet, userId)
			}
			return err
		}
		uow.collect(w)
		return nil
	})
	if errors.Is(err, ledger.ErrDuplicateWallet) {
		// created concurrently
		zap.L().Debug("Wallet created by a concurrent request", zap.String("user_id", userId))
		return s.store.GetWalletByUserId(ctx, userId)
	}
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ids)

	zap.L().Info("Wallet created",
		zap.String("wallet_id", w.Id),
		zap.String("user_id", userId))
	return w, nil
}

func (s *WalletService) loadWallet(ctx context.Context, repo store.Repository, userId string) (*ledger.Wallet, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: user id is required", ledger.ErrWalletNotFound)
	}
	w, err := repo.GetWalletByUserId(ctx, userId)
	if err != nil {
		return nil, notFound(err, ledger.ErrWalletNotFound)
	}
	return w, nil
}

// activeWallet loads the wallet and rejects soft-deactivated ones.
func (s *WalletService) activeWallet(ctx context.Context, userId string) (*ledger.Wallet, error) {
	w, err := s.loadWallet(ctx, s.store, userId)
	if err != nil {
		return nil, err
	}
	if err := w.EnsureActive(); err != nil {
		return nil, err
	}
	return w, nil
}

// getOrCreateAccount must run under the account lock.
func (s *WalletService) getOrCreateAccount(ctx context.Context, uow *unitOfWork, walletId string, currency money.Currency) (*ledger.CurrencyAccount, error) {
	a, err := uow.repo.GetCurrencyAccount(ctx, walletId, currency)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	a, err = ledger.NewCurrencyAccount(walletId, currency, s.now())
	if err != nil {
		return nil, err
	}
	if err := uow.repo.CreateCurrencyAccount(ctx, a); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// another process created it; retry the unit of work
			return nil, fmt.Errorf("%w: %v", store.ErrConcurrentModification, err)
		}
		return nil, err
	}
	zap.L().Info("Currency account created",
		zap.String("wallet_id", walletId),
		zap.String("currency", string(currency)))
	return a, nil
}

func (s *WalletService) GetWallet(ctx context.Context, userId string) (*models.WalletView, error) {
	w, err := s.loadWallet(ctx, s.store, userId)
	if err != nil {
		return nil, err
	}
	return walletView(w), nil
}

func (s *WalletService) DeactivateWallet(ctx context.Context, userId string) error {
	return s.setWalletActive(ctx, userId, false)
}

func (s *WalletService) ActivateWallet(ctx context.Context, userId string) error {
	return s.setWalletActive(ctx, userId, true)
}

func (s *WalletService) setWalletActive(ctx context.Context, userId string, active bool) error {
	w, err := s.loadWallet(ctx, s.store, userId)
	if err != nil {
		return err
	}
	if err := s.store.SetWalletActive(ctx, w.Id, active, s.now()); err != nil {
		return notFound(err, ledger.ErrWalletNotFound)
	}
	zap.L().Info("Wallet status changed",
		zap.String("wallet_id", w.Id),
		zap.Bool("active", active))
	return nil
}

func (s *WalletService) GetBalances(ctx context.Context, userId string) ([]models.AccountBalance, error) {
	w, err := s.loadWallet(ctx, s.store, userId)
	if err != nil {
		return nil, err
	}
	return accountBalances(w.Accounts), nil
}

// ListTransactions returns a page of the account history, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, userId, currency string, limit, offset int) ([]models.TransactionRecord, error) {
	cur, err := money.ParseCurrency(currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidCurrencyAccount, err)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	w, err := s.loadWallet(ctx, s.store, userId)
	if err != nil {
		return nil, err
	}
	account := w.Account(cur)
	if account == nil {
		return []models.TransactionRecord{}, nil
	}
	txs, err := s.store.ListTransactions(ctx, account.Id, limit, offset)
	if err != nil {
		return nil, err
	}
	records := make([]models.TransactionRecord, 0, len(txs))
	for _, t := range txs {
		records = append(records, transactionRecord(t))
	}
	return records, nil
}

func (s *WalletService) AddBankAccount(ctx context.Context, req models.BankAccountRequest) (*models.BankAccountView, error) {
	w, err := s.activeWallet(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	b, err := ledger.NewBankAccount(w.Id, req.BankName, req.AccountNumber, req.Iban, req.HolderName, s.now())
	if err != nil {
		return nil, err
	}
	for _, existing := range w.BankAccounts {
		if existing.Iban == b.Iban && existing.IsActive {
			return nil, fmt.Errorf("%w: IBAN already registered", ledger.ErrInvalidBankAccount)
		}
	}
	if err := s.store.InsertBankAccount(ctx, b); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: IBAN already registered", ledger.ErrInvalidBankAccount)
		}
		return nil, err
	}
	zap.L().Info("Bank account registered",
		zap.String("wallet_id", w.Id),
		zap.String("bank_account_id", b.Id))
	v := bankAccountView(b)
	return &v, nil
}

// RecoverMissingWallets creates wallets for directory users that have none.
func (s *WalletService) RecoverMissingWallets(ctx context.Context, directory clients.UserDirectory) (int, error) {
	userIds, err := directory.ListUserIds(ctx)
	if err != nil {
		return 0, err
	}
	existing, err := s.store.ListWalletUserIds(ctx)
	if err != nil {
		return 0, err
	}
	have := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		have[id] = struct{}{}
	}

	created := 0
	for _, id := range userIds {
		if _, ok := have[id]; ok {
			continue
		}
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		if _, err := s.EnsureWallet(ctx, id); err != nil {
			zap.L().Error("Unable to recover wallet", zap.String("user_id", id), zap.Error(err))
			continue
		}
		created++
	}
	return created, nil
}

func walletView(w *ledger.Wallet) *models.WalletView {
	v := &models.WalletView{
		Id:        w.Id,
		UserId:    w.UserId,
		IsActive:  w.IsActive,
		Accounts:  accountBalances(w.Accounts),
		CreatedAt: w.CreatedAt,
	}
	for _, c := range w.Credits {
		v.Credits = append(v.Credits, creditView(c))
	}
	for _, b := range w.BankAccounts {
		v.BankAccounts = append(v.BankAccounts, bankAccountView(b))
	}
	return v
}

func accountBalances(accounts []*ledger.CurrencyAccount) []models.AccountBalance {
	out := make([]models.AccountBalance, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, models.AccountBalance{
			AccountId: a.Id,
			Currency:  string(a.Currency),
			Balance:   a.Balance.Amount(),
			IsActive:  a.IsActive,
		})
	}
	return out
}

func creditView(c *ledger.Credit) models.CreditView {
	return models.CreditView{
		Id:         c.Id,
		Currency:   string(c.Limit.Currency()),
		Limit:      c.Limit.Amount(),
		UsedAmount: c.UsedAmount.Amount(),
		Available:  c.Available().Amount(),
		DueDate:    c.DueDate,
		Status:     string(c.Status),
	}
}

func bankAccountView(b *ledger.BankAccount) models.BankAccountView {
	return models.BankAccountView{
		Id:            b.Id,
		BankName:      b.BankName,
		AccountNumber: b.AccountNumber,
		Iban:          b.Iban,
		HolderName:    b.HolderName,
		IsActive:      b.IsActive,
	}
}

func transactionRecord(t *ledger.Transaction) models.TransactionRecord {
	return models.TransactionRecord{
		Id:                   t.Id,
		TransactionNumber:    t.TransactionNumber,
		Type:                 string(t.Type),
		Direction:            string(t.Direction),
		Status:               string(t.Status),
		Amount:               t.Amount.Amount(),
		Currency:             string(t.Amount.Currency()),
		Description:          t.Description,
		OrderContext:         t.OrderContext,
		RelatedTransactionId: t.RelatedTransactionId,
		IsCredit:             t.IsCredit,
		TransactionDate:      t.TransactionDate,
		ProcessedAt:          t.ProcessedAt,
	}
}
