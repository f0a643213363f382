package main

import (
	"context"
	"flag"
	"fmt"

	"travel-wallet-go/internal/common"
	"travel-wallet-go/internal/config"
	"travel-wallet-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Wallet owner's user id (required)")
	bankFlag := flag.String("bank-account", "", "Registered bank account id (required)")
	amountFlag := flag.String("amount", "", "Amount to pay out (required)")
	currencyFlag := flag.String("currency", "IRR", "Currency of the payout")
	descFlag := flag.String("description", "Manual payout", "Description stored on the transaction")
	flag.Parse()

	if *userFlag == "" || *bankFlag == "" || *amountFlag == "" {
		zap.L().Fatal("Flags --user, --bank-account and --amount are required")
	}
	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		zap.L().Fatal("Invalid amount", zap.String("amount", *amountFlag), zap.Error(err))
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

	res, err := services.Wallet.RefundToBank(ctx, models.BankRefundRequest{
		UserId:        *userFlag,
		BankAccountId: *bankFlag,
		Amount:        amount,
		Currency:      *currencyFlag,
		Description:   *descFlag,
	})
	if err != nil {
		zap.L().Fatal("Payout failed", zap.String("user_id", *userFlag), zap.Error(err))
	}

	common.PrintHeader("PAYOUT REQUESTED", common.DefaultWidth)
	fmt.Printf("Transaction:  %s (%s)\n", res.TransactionNumber, res.TransactionId)
	fmt.Printf("Bank account: %s\n", res.BankAccountId)
	fmt.Printf("Amount:       %s %s\n", res.Amount.String(), res.Currency)
	fmt.Printf("New balance:  %s %s\n", res.NewBalance.String(), res.Currency)
	common.PrintFooter("The bank transfer is executed by finance from the withdrawal event", common.DefaultWidth)
}
