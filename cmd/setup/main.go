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
	"strings"
	"time"

	"travel-wallet-go/internal/common"
	"travel-wallet-go/internal/config"
	"travel-wallet-go/internal/httpapi"
	"travel-wallet-go/internal/money"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	usersFlag := flag.String("users", "", "Comma separated user ids to create wallets for (optional)")
	tokenFlag := flag.String("token", "", "Print a development bearer token for this user id (optional)")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the development token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	zap.L().Info("Validating currency configuration", zap.String("file", cfg.Wallet.CurrenciesFile))
	settings, err := common.LoadCurrencyConfig(cfg.Wallet.CurrenciesFile)
	if err != nil {
		zap.L().Fatal("Invalid currency configuration", zap.Error(err))
	}
	if err := settings.Apply(); err != nil {
		zap.L().Fatal("Invalid currency configuration", zap.Error(err))
	}

	zap.L().Info("Initializing database schema", zap.String("driver", cfg.Database.Driver))
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	common.PrintHeader("SETUP", common.DefaultWidth)
	fmt.Printf("Database:   %s\n", cfg.Database.Driver)
	fmt.Printf("Gateways:   %s (default %s)\n", strings.Join(services.Gateways.Names(), ", "), services.Gateways.Default())
	fmt.Printf("Credit due: %d-%d days, warning %s before due\n",
		settings.MinDueDays, settings.MaxDueDays, settings.WarnWindow)
	fmt.Println("Currencies:")
	currencies := money.Currencies()
	for i, c := range currencies {
		line := fmt.Sprintf("%s precision %d", c, c.Precision())
		if p, ok := settings.CreditPolicies[c]; ok {
			line += ", credit limit " + p.MaxLimit.StringFixed()
		}
		fmt.Printf("%s %s\n", common.BoxPrefix(i == len(currencies)-1), line)
	}

	created := 0
	for _, userId := range strings.Split(*usersFlag, ",") {
		userId = strings.TrimSpace(userId)
		if userId == "" {
			continue
		}
		w, err := services.Wallet.EnsureWallet(ctx, userId)
		if err != nil {
			zap.L().Error("Failed to create wallet", zap.String("user_id", userId), zap.Error(err))
			continue
		}
		created++
		fmt.Printf("Wallet %s ready for user %s\n", w.Id, userId)
	}

	if *tokenFlag != "" {
		verifier, err := httpapi.NewVerifier(cfg.Server.JWTSecret, cfg.Server.JWTIssuer)
		if err != nil {
			zap.L().Fatal("Cannot issue token", zap.Error(err))
		}
		token, err := verifier.Issue(*tokenFlag, *tokenTTL)
		if err != nil {
			zap.L().Fatal("Cannot issue token", zap.Error(err))
		}
		fmt.Printf("\nBearer token for %s (valid %s):\n%s\n", *tokenFlag, *tokenTTL, token)
	}

	common.PrintFooter(fmt.Sprintf("Setup complete: %d wallet(s) ensured", created), common.DefaultWidth)
}
