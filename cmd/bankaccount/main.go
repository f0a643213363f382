package main

import (
	"context"
	"flag"
	"fmt"

	"travel-wallet-go/internal/common"
	"travel-wallet-go/internal/config"
	"travel-wallet-go/internal/models"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Wallet owner's user id (required)")
	ibanFlag := flag.String("iban", "", "IBAN of the account (required)")
	bankFlag := flag.String("bank", "", "Bank name")
	numberFlag := flag.String("number", "", "Account number")
	holderFlag := flag.String("holder", "", "Account holder name")
	flag.Parse()

	if *userFlag == "" || *ibanFlag == "" {
		zap.L().Fatal("Flags --user and --iban are required")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	view, err := services.Wallet.AddBankAccount(ctx, models.BankAccountRequest{
		UserId:        *userFlag,
		BankName:      *bankFlag,
		AccountNumber: *numberFlag,
		Iban:          *ibanFlag,
		HolderName:    *holderFlag,
	})
	if err != nil {
		zap.L().Fatal("Failed to add bank account", zap.String("user_id", *userFlag), zap.Error(err))
	}

	fmt.Printf("Bank account %s registered (%s, %s)\n", view.Id, view.Iban, view.HolderName)
}
