package wallet

import (
	"encoding/json"
	"time"

	"github.com/ledger-pay/ledger_pay/internal/ledger"
)

// createRequest captures user-provided data to provision a wallet.
type createRequest struct {
	ID       string `json:"id,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// operationRequest captures a deposit or withdrawal submission. Amount is a
// JSON number decoded as text so fractional values survive without binary
// float rounding.
type operationRequest struct {
	OperationType string      `json:"operation_type"`
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"currency"`
	Description   string      `json:"description,omitempty"`
	ReferenceID   string      `json:"reference_id,omitempty"`
}

// statusRequest captures a lifecycle transition.
type statusRequest struct {
	Status string `json:"status"`
}

type walletResponse struct {
	ID        string    `json:"id"`
	Balance   string    `json:"balance"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type transactionResponse struct {
	ID            int64     `json:"transaction_id"`
	WalletID      string    `json:"wallet_id"`
	OperationType string    `json:"operation_type"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	BalanceBefore string    `json:"balance_before"`
	BalanceAfter  string    `json:"balance_after"`
	Description   string    `json:"description,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type statisticsResponse struct {
	WalletID         string `json:"wallet_id"`
	CurrentBalance   string `json:"current_balance"`
	Currency         string `json:"currency"`
	TotalDeposits    string `json:"total_deposits"`
	TotalWithdrawals string `json:"total_withdrawals"`
	TransactionCount int64  `json:"transaction_count"`
}

func toWalletResponse(w ledger.Wallet) walletResponse {
	return walletResponse{
		ID:        w.ID.String(),
		Balance:   w.Balance.String(),
		Currency:  w.Currency,
		Status:    string(w.Status),
		Version:   w.Version,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func toTransactionResponse(tx ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:            tx.ID,
		WalletID:      tx.WalletID.String(),
		OperationType: string(tx.Type),
		Amount:        tx.Amount.String(),
		Currency:      tx.Amount.Currency(),
		BalanceBefore: tx.BalanceBefore.String(),
		BalanceAfter:  tx.BalanceAfter.String(),
		Description:   tx.Description,
		ReferenceID:   tx.ReferenceID,
		CreatedAt:     tx.CreatedAt,
	}
}

func toStatisticsResponse(stats ledger.Statistics) statisticsResponse {
	return statisticsResponse{
		WalletID:         stats.WalletID.String(),
		CurrentBalance:   stats.Balance.String(),
		Currency:         stats.Balance.Currency(),
		TotalDeposits:    stats.TotalDeposits.String(),
		TotalWithdrawals: stats.TotalWithdrawals.String(),
		TransactionCount: stats.TransactionCount,
	}
}
