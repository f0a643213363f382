package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"travel-wallet-go/internal/common"
	"travel-wallet-go/internal/config"
	"travel-wallet-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  credit assign --user ID --limit AMOUNT --currency IRR --due 2026-12-31")
	fmt.Fprintln(os.Stderr, "  credit settle --user ID --credit ID --reference REF")
	os.Exit(2)
}

func printCredit(title string, c *models.CreditView) {
	common.PrintHeader(title, common.DefaultWidth)
	fmt.Printf("Credit:    %s\n", c.Id)
	fmt.Printf("Status:    %s\n", c.Status)
	fmt.Printf("Limit:     %s %s\n", c.Limit.String(), c.Currency)
	fmt.Printf("Used:      %s %s\n", c.UsedAmount.String(), c.Currency)
	fmt.Printf("Available: %s %s\n", c.Available.String(), c.Currency)
	fmt.Printf("Due:       %s\n", c.DueDate.Format("2006-01-02"))
	fmt.Println()
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	userFlag := fs.String("user", "", "Wallet owner's user id")
	limitFlag := fs.String("limit", "", "Credit limit (assign)")
	currencyFlag := fs.String("currency", "IRR", "Credit currency (assign)")
	dueFlag := fs.String("due", "", "Due date YYYY-MM-DD (assign)")
	creditFlag := fs.String("credit", "", "Credit id (settle)")
	referenceFlag := fs.String("reference", "", "Settlement reference (settle)")
	_ = fs.Parse(os.Args[2:])

	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if *userFlag == "" {
		usage()
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

	switch command {
	case "assign":
		limit, err := decimal.NewFromString(*limitFlag)
		if err != nil {
			zap.L().Fatal("Invalid limit", zap.String("limit", *limitFlag), zap.Error(err))
		}
		due, err := time.Parse("2006-01-02", *dueFlag)
		if err != nil {
			zap.L().Fatal("Invalid due date", zap.String("due", *dueFlag), zap.Error(err))
		}
		view, err := services.Wallet.AssignCredit(ctx, *userFlag, limit, *currencyFlag, due)
		if err != nil {
			zap.L().Fatal("Failed to assign credit", zap.String("user_id", *userFlag), zap.Error(err))
		}
		printCredit("CREDIT ASSIGNED", view)
	case "settle":
		if *creditFlag == "" {
			usage()
		}
		view, err := services.Wallet.SettleCredit(ctx, *userFlag, *creditFlag, *referenceFlag)
		if err != nil {
			zap.L().Fatal("Failed to settle credit", zap.String("credit_id", *creditFlag), zap.Error(err))
		}
		printCredit("CREDIT SETTLED", view)
	default:
		usage()
	}
}
