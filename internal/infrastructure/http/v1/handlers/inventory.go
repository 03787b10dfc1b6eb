package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/http/v1/dto"
)

const defaultExpiryWindow = 7 * 24 * time.Hour

// InventoryHandler handles items, batches and stock movements.
type InventoryHandler struct {
	*BaseHandler
	service *inventory.Service
	now     func() time.Time
}

// NewInventoryHandler creates a new inventory handler.
// now stamps the transaction date of stock commands.
func NewInventoryHandler(service *inventory.Service, now func() time.Time) *InventoryHandler {
	if now == nil {
		now = time.Now
	}
	return &InventoryHandler{
		BaseHandler: NewBaseHandler(),
		service:     service,
		now:         now,
	}
}

// --- Items ---

// RegisterItem creates or updates an item's catalog attributes.
// POST /api/v1/items
func (h *InventoryHandler) RegisterItem(c *gin.Context) {
	var req dto.RegisterItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cmd := inventory.RegisterItemCommand{Name: req.Name, Unit: req.Unit, PaxCapacity: req.PaxCapacity}
	if req.ID != nil {
		itemID, err := id.Parse(*req.ID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid item id").WithDetail("id", *req.ID))
			return
		}
		cmd.ID = &itemID
	}

	item, err := h.service.RegisterItem(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromItem(*item))
}

// ListItems returns items ordered by name.
// GET /api/v1/items?search=&inStock=&limit=&offset=
func (h *InventoryHandler) ListItems(c *gin.Context) {
	filter := inventory.ItemFilter{
		NameContains: strings.TrimSpace(c.Query("search")),
		InStockOnly:  h.ParseBoolQuery(c, "inStock"),
		Limit:        h.ParseIntQuery(c, "limit", 50),
		Offset:       h.ParseIntQuery(c, "offset", 0),
	}

	items, err := h.service.ListItems(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make([]dto.ItemResponse, len(items))
	for i, item := range items {
		out[i] = dto.FromItem(item)
	}
	h.OK(c, dto.ListResponse[dto.ItemResponse]{Items: out, Limit: filter.Limit, Offset: filter.Offset})
}

// GetItem returns an item with its on-hand quantity.
// GET /api/v1/items/:itemId
func (h *InventoryHandler) GetItem(c *gin.Context) {
	itemID, ok := h.ParseID(c, "itemId")
	if !ok {
		return
	}

	item, err := h.service.GetItem(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromItem(*item))
}

// ListBatches returns the item's batches.
// GET /api/v1/items/:itemId/batches?includeEmpty=
func (h *InventoryHandler) ListBatches(c *gin.Context) {
	itemID, ok := h.ParseID(c, "itemId")
	if !ok {
		return
	}

	batches, err := h.service.ListBatches(c.Request.Context(), itemID, h.ParseBoolQuery(c, "includeEmpty"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[dto.BatchResponse]{Items: dto.FromBatches(batches)})
}

// ListFIFOCandidates returns live batches in consumption order.
// GET /api/v1/items/:itemId/fifo
func (h *InventoryHandler) ListFIFOCandidates(c *gin.Context) {
	itemID, ok := h.ParseID(c, "itemId")
	if !ok {
		return
	}

	batches, err := h.service.ListFIFOCandidates(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[dto.BatchResponse]{Items: dto.FromBatches(batches)})
}

// ListItemHistory returns the item's ledger lines, newest first.
// GET /api/v1/items/:itemId/history?type=&fromDate=&toDate=&limit=&offset=
func (h *InventoryHandler) ListItemHistory(c *gin.Context) {
	itemID, ok := h.ParseID(c, "itemId")
	if !ok {
		return
	}

	filter := inventory.HistoryFilter{
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if v := c.Query("type"); v != "" {
		t := inventory.TransactionType(v)
		filter.Type = &t
	}
	if v := c.Query("fromDate"); v != "" {
		from, err := dto.ParseDate(v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid fromDate").WithDetail("error", err.Error()))
			return
		}
		filter.FromDate = &from
	}
	if v := c.Query("toDate"); v != "" {
		to, err := dto.ParseDate(v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid toDate").WithDetail("error", err.Error()))
			return
		}
		// A bare date covers the whole day.
		if len(v) == len(dto.DateLayout) {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		filter.ToDate = &to
	}

	entries, err := h.service.ListItemHistory(c.Request.Context(), itemID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[dto.HistoryEntryResponse]{
		Items:  dto.FromLedgerEntries(entries),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// Reconcile compares the item's aggregate with its batches and ledger.
// POST /api/v1/items/:itemId/reconcile
func (h *InventoryHandler) Reconcile(c *gin.Context) {
	itemID, ok := h.ParseID(c, "itemId")
	if !ok {
		return
	}

	report, err := h.service.Reconcile(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// --- Stock movements ---

// StockIn receives a lot and creates its batch.
// POST /api/v1/stock/in
func (h *InventoryHandler) StockIn(c *gin.Context) {
	var req dto.StockInRequest
	if !h.BindJSON(c, &req) {
		return
	}

	itemID, err := id.Parse(req.ItemID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid itemId").WithDetail("itemId", req.ItemID))
		return
	}
	expiry, err := dto.ParseOptionalDate(req.ExpiryDate)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid expiryDate").WithDetail("error", err.Error()))
		return
	}

	at := h.now().UTC()
	stockInDate := at
	if req.StockInDate != nil && *req.StockInDate != "" {
		stockInDate, err = dto.ParseDate(*req.StockInDate)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid stockInDate").WithDetail("error", err.Error()))
			return
		}
	}

	result, err := h.service.StockIn(c.Request.Context(), inventory.StockInCommand{
		ItemID:      itemID,
		Quantity:    req.Quantity,
		ExpiryDate:  expiry,
		StockInDate: stockInDate,
		At:          at,
		ActorID:     appctx.GetActorID(c.Request.Context()),
		Notes:       req.Notes,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromTransactionResult(*result))
}

// StockOut withdraws stock in FIFO order.
// POST /api/v1/stock/out
func (h *InventoryHandler) StockOut(c *gin.Context) {
	var req dto.StockOutRequest
	if !h.BindJSON(c, &req) {
		return
	}

	itemID, err := id.Parse(req.ItemID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid itemId").WithDetail("itemId", req.ItemID))
		return
	}

	result, err := h.service.StockOut(c.Request.Context(), inventory.StockOutCommand{
		ItemID:   itemID,
		Quantity: req.Quantity,
		Reason:   req.Reason,
		At:       h.now().UTC(),
		ActorID:  appctx.GetActorID(c.Request.Context()),
		Notes:    req.Notes,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromTransactionResult(*result))
}

// GetTransaction returns a movement with its lines.
// GET /api/v1/transactions/:transactionId
func (h *InventoryHandler) GetTransaction(c *gin.Context) {
	transactionID, ok := h.ParseID(c, "transactionId")
	if !ok {
		return
	}

	result, err := h.service.GetTransaction(c.Request.Context(), transactionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromTransactionResult(*result))
}

// --- Reports ---

// ListExpiringBatches returns live batches expiring within the window.
// within is a number of days or a Go duration ("72h"); asOf defaults to today.
// GET /api/v1/batches/expiring?within=&asOf=
func (h *InventoryHandler) ListExpiringBatches(c *gin.Context) {
	within, err := parseWindow(c.Query("within"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid within").WithDetail("within", c.Query("within")))
		return
	}

	asOf := h.now().UTC()
	if v := c.Query("asOf"); v != "" {
		asOf, err = dto.ParseDate(v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid asOf").WithDetail("error", err.Error()))
			return
		}
	}

	batches, err := h.service.ListExpiringBatches(c.Request.Context(), asOf, within)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[dto.BatchResponse]{Items: dto.FromBatches(batches)})
}

// ListIncidents returns recorded inventory inconsistencies.
// GET /api/v1/incidents?itemId=&limit=
func (h *InventoryHandler) ListIncidents(c *gin.Context) {
	itemID, err := id.ParseOptional(c.Query("itemId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid itemId").WithDetail("itemId", c.Query("itemId")))
		return
	}

	incidents, err := h.service.ListIncidents(c.Request.Context(), itemID, h.ParseIntQuery(c, "limit", 50))
	if err != nil {
		h.Error(c, err)
		return
	}
	if incidents == nil {
		incidents = []inventory.Incident{}
	}
	h.OK(c, dto.ListResponse[inventory.Incident]{Items: incidents})
}

func parseWindow(v string) (time.Duration, error) {
	if v == "" {
		return defaultExpiryWindow, nil
	}
	if days, err := strconv.Atoi(v); err == nil {
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(v)
}
