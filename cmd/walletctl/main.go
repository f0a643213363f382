package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"travel-wallet-go/internal/common"
	"travel-wallet-go/internal/config"

	"go.uber.org/zap"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  walletctl show       --user ID")
	fmt.Fprintln(os.Stderr, "  walletctl history    --user ID [--currency IRR] [--limit 20]")
	fmt.Fprintln(os.Stderr, "  walletctl deactivate --user ID")
	fmt.Fprintln(os.Stderr, "  walletctl activate   --user ID")
	fmt.Fprintln(os.Stderr, "  walletctl snapshot   --user ID --currency IRR")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	userFlag := fs.String("user", "", "Wallet owner's user id")
	currencyFlag := fs.String("currency", "", "Currency code")
	limitFlag := fs.Int("limit", 20, "Number of transactions to list")
	_ = fs.Parse(os.Args[2:])
	if *userFlag == "" {
		usage()
	}

	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	wallet := services.Wallet
	switch command {
	case "show":
		view, err := wallet.GetWallet(ctx, *userFlag)
		if err != nil {
			zap.L().Fatal("Failed to load wallet", zap.Error(err))
		}
		common.PrintHeader("WALLET "+view.Id, common.DefaultWidth)
		fmt.Printf("User:   %s\n", view.UserId)
		fmt.Printf("Active: %t\n", view.IsActive)
		for i, a := range view.Accounts {
			fmt.Printf("%s %-4s %s\n", common.BoxPrefix(i == len(view.Accounts)-1), a.Currency, a.Balance.String())
		}
		for _, c := range view.Credits {
			fmt.Printf("Credit %s: %s/%s %s, due %s (%s)\n",
				common.ShortId(c.Id), c.UsedAmount.String(), c.Limit.String(), c.Currency, c.DueDate.Format("2006-01-02"), c.Status)
		}
	case "history":
		records, err := wallet.ListTransactions(ctx, *userFlag, *currencyFlag, *limitFlag, 0)
		if err != nil {
			zap.L().Fatal("Failed to list transactions", zap.Error(err))
		}
		common.PrintHeader("TRANSACTIONS", common.WideWidth)
		for _, r := range records {
			fmt.Printf("%s  %-24s %-10s %-3s %-9s %16s %s  %s\n",
				r.TransactionDate.Format("2006-01-02 15:04"),
				r.TransactionNumber, r.Type, r.Direction, r.Status,
				r.Amount.String(), r.Currency, r.Description)
		}
	case "deactivate":
		if err := wallet.DeactivateWallet(ctx, *userFlag); err != nil {
			zap.L().Fatal("Failed to deactivate wallet", zap.Error(err))
		}
		fmt.Printf("Wallet of %s deactivated\n", *userFlag)
	case "activate":
		if err := wallet.ActivateWallet(ctx, *userFlag); err != nil {
			zap.L().Fatal("Failed to activate wallet", zap.Error(err))
		}
		fmt.Printf("Wallet of %s activated\n", *userFlag)
	case "snapshot":
		if *currencyFlag == "" {
			usage()
		}
		snap, err := wallet.TakeSnapshot(ctx, *userFlag, *currencyFlag)
		if err != nil {
			zap.L().Fatal("Failed to take snapshot", zap.Error(err))
		}
		fmt.Printf("Snapshot %s: balance %s on %s\n", snap.Id, snap.Balance.String(), snap.SnapshotDate.Format("2006-01-02"))
	default:
		usage()
	}
}
