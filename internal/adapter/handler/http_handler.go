package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

var validate = validator.New()

type HTTPHandler struct {
	ledger *service.LedgerService
	// ping reports backend health; nil means always healthy.
	ping func(ctx context.Context) error
}

type SubmitHTTPRequest struct {
	ItemSKU        string `json:"item_sku" validate:"required"`
	Direction      string `json:"direction" validate:"required"`
	Quantity       int    `json:"quantity" validate:"required"`
	Actor          string `json:"actor"`
	Note           string `json:"note"`
	IdempotencyKey string `json:"idempotency_key"`
}

type RegisterItemHTTPRequest struct {
	SKU                 string          `json:"sku" validate:"required"`
	Name                string          `json:"name" validate:"required"`
	CategoryID          string          `json:"category_id"`
	MinStockLevel       int             `json:"min_stock_level" validate:"gte=0"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	OverstockMultiplier int             `json:"overstock_multiplier" validate:"gte=0"`
}

type TransactionResponse struct {
	ID               string    `json:"id"`
	ItemSKU          string    `json:"item_sku"`
	Direction        string    `json:"direction"`
	Quantity         int       `json:"quantity"`
	PreviousQuantity int       `json:"previous_quantity"`
	NewQuantity      int       `json:"new_quantity"`
	Actor            string    `json:"actor,omitempty"`
	Note             string    `json:"note,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	Status           string    `json:"status,omitempty"`
}

type ItemResponse struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	CategoryID    string          `json:"category_id,omitempty"`
	Quantity      int             `json:"quantity"`
	MinStockLevel int             `json:"min_stock_level"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Status        string          `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewHTTPHandler(ledger *service.LedgerService, ping func(ctx context.Context) error) *HTTPHandler {
	return &HTTPHandler{ledger: ledger, ping: ping}
}

// Router builds the gin engine with every ledger route mounted.
func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r)
	return r
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.POST("/transactions", h.SubmitTransaction)
	api.POST("/items", h.RegisterItem)
	api.GET("/items/:sku/status", h.GetStatus)
	api.GET("/items/:sku/value", h.GetStockValue)
	api.GET("/items/:sku/reorder", h.GetReorderQuantity)
	api.GET("/items/:sku/reconcile", h.Reconcile)
	api.GET("/items/:sku/transactions", h.ListTransactions)
	api.GET("/reports/low-stock", h.LowStockReport)
	api.GET("/reports/summary", h.Summary)
}

func (h *HTTPHandler) SubmitTransaction(c *gin.Context) {
	var req SubmitHTTPRequest
	if !bindAndValidate(c, &req) {
		return
	}
	direction, err := domain.ParseDirection(req.Direction)
	if err != nil {
		writeError(c, err)
		return
	}

	committed, err := h.ledger.Submit(c.Request.Context(), service.SubmitRequest{
		ItemSKU:        req.ItemSKU,
		Direction:      direction,
		Quantity:       req.Quantity,
		Actor:          req.Actor,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := toTransactionResponse(committed.Transaction)
	resp.Status = string(committed.Status)
	c.JSON(http.StatusCreated, resp)
}

func (h *HTTPHandler) RegisterItem(c *gin.Context) {
	var req RegisterItemHTTPRequest
	if !bindAndValidate(c, &req) {
		return
	}
	item, err := h.ledger.RegisterItem(c.Request.Context(), domain.Item{
		SKU:                 req.SKU,
		Name:                req.Name,
		CategoryID:          req.CategoryID,
		MinStockLevel:       req.MinStockLevel,
		UnitPrice:           req.UnitPrice,
		OverstockMultiplier: req.OverstockMultiplier,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.toItemResponse(item))
}

func (h *HTTPHandler) GetStatus(c *gin.Context) {
	item, err := h.ledger.GetItem(c.Request.Context(), c.Param("sku"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toItemResponse(item))
}

func (h *HTTPHandler) GetStockValue(c *gin.Context) {
	sku := c.Param("sku")
	value, err := h.ledger.GetStockValue(c.Request.Context(), sku)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sku": sku, "stock_value": value.StringFixedBank(2)})
}

func (h *HTTPHandler) GetReorderQuantity(c *gin.Context) {
	sku := c.Param("sku")
	qty, err := h.ledger.GetReorderQuantity(c.Request.Context(), sku)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sku": sku, "reorder_quantity": qty})
}

func (h *HTTPHandler) Reconcile(c *gin.Context) {
	rec, err := h.ledger.Reconcile(c.Request.Context(), c.Param("sku"))
	if err != nil {
		writeError(c, err)
		return
	}
	breaks := rec.ChainBreaks
	if breaks == nil {
		breaks = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"sku":          rec.ItemSKU,
		"stored":       rec.Stored,
		"replayed":     rec.Replayed,
		"transactions": rec.Transactions,
		"chain_breaks": breaks,
		"consistent":   rec.Consistent,
	})
}

func (h *HTTPHandler) ListTransactions(c *gin.Context) {
	sku := c.Param("sku")
	if _, err := h.ledger.GetItem(c.Request.Context(), sku); err != nil {
		writeError(c, err)
		return
	}
	txns, err := h.ledger.Transactions(c.Request.Context(), sku)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	c.JSON(http.StatusOK, out)
}

func (h *HTTPHandler) LowStockReport(c *gin.Context) {
	entries, err := h.ledger.LowStockReport(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{
			"item":             h.toItemResponse(e.Item),
			"reorder_quantity": e.ReorderQuantity,
		})
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "items": out})
}

func (h *HTTPHandler) Summary(c *gin.Context) {
	sum, err := h.ledger.Summary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	byStatus := make(map[string]int, len(sum.ByStatus))
	for status, n := range sum.ByStatus {
		byStatus[string(status)] = n
	}
	c.JSON(http.StatusOK, gin.H{
		"total_items": sum.TotalItems,
		"total_value": sum.TotalValue.StringFixedBank(2),
		"by_status":   byStatus,
	})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// bindAndValidate writes the error response itself; callers return on false.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid input", Message: "invalid request body"})
		return false
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid input", Message: err.Error()})
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	m := mapError(err)
	msg := m.message
	if m.status < http.StatusInternalServerError {
		msg = err.Error()
	}
	c.JSON(m.status, ErrorResponse{Error: m.message, Message: msg})
}

func toTransactionResponse(t domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:               t.ID,
		ItemSKU:          t.ItemSKU,
		Direction:        string(t.Direction),
		Quantity:         t.Quantity,
		PreviousQuantity: t.PreviousQuantity,
		NewQuantity:      t.NewQuantity,
		Actor:            t.Actor,
		Note:             t.Note,
		CreatedAt:        t.CreatedAt,
	}
}

func (h *HTTPHandler) toItemResponse(item domain.Item) ItemResponse {
	return ItemResponse{
		SKU:           item.SKU,
		Name:          item.Name,
		CategoryID:    item.CategoryID,
		Quantity:      item.Quantity,
		MinStockLevel: item.MinStockLevel,
		UnitPrice:     item.UnitPrice,
		Status:        string(h.ledger.Calculator().ItemStatus(item)),
	}
}
