package service

import (
	"context"
	"strings"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"
)

type InventoryTransactionResponse struct {
	RequestID       *string `json:"request_id"`
	TransactionType string  `json:"transaction_type"`
	QuantityChanged int     `json:"quantity_changed"`
	StockAfter      int     `json:"stock_after"`
	CreatedAt       string  `json:"created_at"`
}

type InventoryItemResponse struct {
	ID               string                         `json:"id"`
	SKU              string                         `json:"sku"`
	Name             string                         `json:"name"`
	Quantity         int                            `json:"quantity"`
	Status           model.InventoryStatus          `json:"status"`
	PendingRequestID *string                        `json:"pending_request_id"`
	Transactions     []InventoryTransactionResponse `json:"transactions"`
}

// InventoryService is the read side of the stock that inventory changes activate.
type InventoryService interface {
	GetBySKU(ctx context.Context, sku string) (InventoryItemResponse, error)
}

type inventoryService struct {
	repo    repository.InventoryRepository
	timeout time.Duration
}

func NewInventoryService(repo repository.InventoryRepository, timeout time.Duration) InventoryService {
	return &inventoryService{repo: repo, timeout: timeout}
}

func (s *inventoryService) GetBySKU(ctx context.Context, sku string) (InventoryItemResponse, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return InventoryItemResponse{}, invalid("sku", "is required")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	item, err := s.repo.FindBySKU(ctx, sku)
	if err != nil {
		return InventoryItemResponse{}, storeErr(ctx, err, "load inventory item")
	}
	txs, err := s.repo.ListTransactions(ctx, item.ID)
	if err != nil {
		return InventoryItemResponse{}, storeErr(ctx, err, "list inventory transactions")
	}

	res := InventoryItemResponse{
		ID:           item.ID.String(),
		SKU:          item.SKU,
		Name:         item.Name,
		Quantity:     item.Quantity,
		Status:       item.Status,
		Transactions: make([]InventoryTransactionResponse, 0, len(txs)),
	}
	if item.PendingRequestID != nil {
		id := item.PendingRequestID.String()
		res.PendingRequestID = &id
	}
	for _, t := range txs {
		tr := InventoryTransactionResponse{
			TransactionType: t.TransactionType,
			QuantityChanged: t.QuantityChanged,
			StockAfter:      t.StockAfter,
			CreatedAt:       t.CreatedAt.UTC().Format(time.RFC3339),
		}
		if t.RequestID != nil {
			id := t.RequestID.String()
			tr.RequestID = &id
		}
		res.Transactions = append(res.Transactions, tr)
	}
	return res, nil
}
