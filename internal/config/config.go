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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"travel-wallet-go/internal/models"

	"github.com/shopspring/decimal"
)

// durations collects the first parse error so Load can read many values in a row.
type durations struct {
	err error
}

func (d *durations) get(key string, defaultValue time.Duration) time.Duration {
	v, err := getEnvDuration(key, defaultValue)
	if err != nil && d.err == nil {
		d.err = err
	}
	return v
}

func Load() (*models.Config, error) {
	var d durations

	database := models.DatabaseConfig{
		Driver:          getEnvString("DB_DRIVER", "sqlite3"),
		Path:            getEnvString("DATABASE_PATH", "wallet.db"),
		DSN:             getEnvString("DATABASE_DSN", ""),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: d.get("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnMaxIdleTime: d.get("DB_CONN_MAX_IDLE_TIME", 30*time.Second),
		PingTimeout:     d.get("DB_PING_TIMEOUT", 5*time.Second),
	}

	server := models.ServerConfig{
		Addr:            getEnvString("SERVER_ADDR", ":8080"),
		JWTSecret:       getEnvString("JWT_SECRET", ""),
		JWTIssuer:       getEnvString("JWT_ISSUER", ""),
		RunJobs:         getEnvBool("SERVER_RUN_JOBS", true),
		ShutdownTimeout: d.get("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	httpGateways, err := loadHTTPGateways(getEnvString("GATEWAY_HTTP_PROVIDERS", ""))
	if err != nil {
		return nil, err
	}

	gateway := models.GatewayConfig{
		Default:          getEnvString("GATEWAY_DEFAULT", "sandbox"),
		Timeout:          d.get("GATEWAY_TIMEOUT", 10*time.Second),
		CallbackURL:      getEnvString("GATEWAY_CALLBACK_URL", "http://localhost:8080/api/v1/payments/callback"),
		SandboxEnabled:   getEnvBool("GATEWAY_SANDBOX_ENABLED", true),
		SandboxAutoPay:   getEnvBool("GATEWAY_SANDBOX_AUTOPAY", false),
		HTTPGateways:     httpGateways,
		StripeSecretKey:  getEnvString("STRIPE_SECRET_KEY", ""),
		StripeAPIURL:     getEnvString("STRIPE_API_URL", ""),
		StripeSuccessURL: getEnvString("STRIPE_SUCCESS_URL", ""),
		StripeCancelURL:  getEnvString("STRIPE_CANCEL_URL", ""),
	}

	orders := models.ServiceEndpoint{
		BaseURL: getEnvString("ORDERS_BASE_URL", ""),
		Token:   getEnvString("ORDERS_TOKEN", ""),
		Timeout: d.get("ORDERS_TIMEOUT", 5*time.Second),
	}
	users := models.ServiceEndpoint{
		BaseURL: getEnvString("USERS_BASE_URL", ""),
		Token:   getEnvString("USERS_TOKEN", ""),
		Timeout: d.get("USERS_TIMEOUT", 5*time.Second),
	}

	redis := models.RedisConfig{
		Enabled:     getEnvBool("REDIS_ENABLED", false),
		Addr:        getEnvString("REDIS_ADDR", "localhost:6379"),
		Password:    getEnvString("REDIS_PASSWORD", ""),
		DB:          getEnvInt("REDIS_DB", 0),
		LockTTL:     d.get("REDIS_LOCK_TTL", 30*time.Second),
		EventStream: getEnvString("REDIS_EVENT_STREAM", "wallet-events"),
	}

	formance := models.FormanceConfig{
		Enabled:      getEnvBool("FORMANCE_ENABLED", false),
		StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
		ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
		ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
		Ledger:       getEnvString("FORMANCE_LEDGER", "travel-wallet"),
	}

	tolerance, err := getEnvDecimal("WALLET_AMOUNT_TOLERANCE", decimal.RequireFromString("0.01"))
	if err != nil {
		return nil, err
	}
	wallet := models.WalletConfig{
		CurrenciesFile:    getEnvString("WALLET_CURRENCIES_FILE", "currencies.yaml"),
		RefundWindow:      d.get("WALLET_REFUND_WINDOW", 30*24*time.Hour),
		AmountTolerance:   tolerance,
		PendingPaymentTTL: d.get("WALLET_PENDING_PAYMENT_TTL", 30*time.Minute),
	}

	listener := models.ListenerConfig{
		PaymentPollInterval:    d.get("LISTENER_PAYMENT_POLL_INTERVAL", time.Minute),
		PaymentRecheckAfter:    d.get("LISTENER_PAYMENT_RECHECK_AFTER", 5*time.Minute),
		SnapshotInterval:       d.get("LISTENER_SNAPSHOT_INTERVAL", time.Hour),
		CreditSweepInterval:    d.get("LISTENER_CREDIT_SWEEP_INTERVAL", time.Hour),
		CreditWarnWindow:       d.get("LISTENER_CREDIT_WARN_WINDOW", 72*time.Hour),
		WalletRecoveryInterval: d.get("LISTENER_WALLET_RECOVERY_INTERVAL", 6*time.Hour),
		OutboxInterval:         d.get("LISTENER_OUTBOX_INTERVAL", 5*time.Second),
		OutboxBatchSize:        getEnvInt("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxAttempts:      getEnvInt("OUTBOX_MAX_ATTEMPTS", 8),
		CleanupInterval:        d.get("LISTENER_CLEANUP_INTERVAL", 15*time.Minute),
	}

	if d.err != nil {
		return nil, d.err
	}
	if tolerance.IsNegative() {
		return nil, fmt.Errorf("WALLET_AMOUNT_TOLERANCE cannot be negative, got %s", tolerance)
	}

	return &models.Config{
		Database: database,
		Server:   server,
		Gateway:  gateway,
		Orders:   orders,
		Users:    users,
		Redis:    redis,
		Formance: formance,
		Wallet:   wallet,
		Listener: listener,
	}, nil
}

// loadHTTPGateways reads a comma separated provider list. Each provider is
// configured through GATEWAY_<NAME>_BASE_URL, _MERCHANT_ID and _API_KEY.
func loadHTTPGateways(list string) ([]models.HTTPGatewayConfig, error) {
	var out []models.HTTPGatewayConfig
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		prefix := "GATEWAY_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_"
		gw := models.HTTPGatewayConfig{
			Name:       name,
			BaseURL:    getEnvString(prefix+"BASE_URL", ""),
			MerchantId: getEnvString(prefix+"MERCHANT_ID", ""),
			APIKey:     getEnvString(prefix+"API_KEY", ""),
		}
		if gw.BaseURL == "" {
			return nil, fmt.Errorf("gateway %q is listed but %sBASE_URL is not set", name, prefix)
		}
		out = append(out, gw)
	}
	return out, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
