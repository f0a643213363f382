/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"

	"travel-wallet-go/internal/common"
	"travel-wallet-go/internal/config"
	"travel-wallet-go/internal/models"
	"travel-wallet-go/internal/money"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalWallets   int
	totalAccounts  int
	mismatched     int
	mirrorMismatch int
}

func printAccount(ctx context.Context, services *common.Services, r models.ReconciliationResult, isLast bool, stats *balanceStats) {
	c := money.Currency(r.Currency)
	status := "ok"
	if !r.Matches {
		status = "MISMATCH expected " + common.FormatAmount(r.Expected, c.Precision(), r.Currency)
		stats.mismatched++
	}

	fmt.Printf("%s %-4s %24s  [%s]  account %s\n",
		common.BoxPrefix(isLast),
		r.Currency,
		r.Balance.StringFixed(c.Precision()),
		status,
		common.ShortId(r.AccountId))

	if services.Formance == nil {
		return
	}
	mirrored, err := services.Formance.MirroredBalance(ctx, r.WalletId, c)
	if err != nil {
		fmt.Printf("        mirror: unavailable (%v)\n", err)
		return
	}
	if !mirrored.Equal(r.Balance) {
		stats.mirrorMismatch++
		fmt.Printf("        mirror: %s (differs)\n", mirrored.StringFixed(c.Precision()))
	}
}

func processUser(ctx context.Context, services *common.Services, userId string, stats *balanceStats) error {
	results, err := services.Wallet.ReconcileWallet(ctx, userId)
	if err != nil {
		return fmt.Errorf("failed to reconcile wallet: %w", err)
	}

	stats.totalWallets++
	stats.totalAccounts += len(results)

	fmt.Printf("\n┌─ User: %s\n", userId)
	fmt.Printf("│  Accounts: %d\n", len(results))
	common.PrintBoxSeparator(78)
	for i, r := range results {
		printAccount(ctx, services, r, i == len(results)-1, stats)
	}
	return nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Filter by a single user id (optional)")
	flag.Parse()

	logger.Info("Starting balance report")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	userIds := []string{*userFlag}
	if *userFlag == "" {
		userIds, err = services.DbService.ListWalletUserIds(ctx)
		if err != nil {
			logger.Fatal("Failed to list wallets", zap.Error(err))
		}
	}

	common.PrintHeader("WALLET BALANCE REPORT", common.DefaultWidth)

	stats := &balanceStats{}
	for _, userId := range userIds {
		if err := processUser(ctx, services, userId, stats); err != nil {
			logger.Error("Failed to process user", zap.String("user_id", userId), zap.Error(err))
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d wallets, %d accounts, %d ledger mismatches, %d mirror mismatches",
		stats.totalWallets, stats.totalAccounts, stats.mismatched, stats.mirrorMismatch)
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance report completed",
		zap.Int("wallets", stats.totalWallets),
		zap.Int("accounts", stats.totalAccounts),
		zap.Int("mismatched", stats.mismatched),
		zap.Int("mirror_mismatched", stats.mirrorMismatch))
}
