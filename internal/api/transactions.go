package api

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON payload passthrough
	"errors"        // Error matching
	"net/http"      // HTTP status codes
	"strconv"       // String conversion
	"time"          // Time parsing and durations

	"transaction_system/internal/banesco"    // Provider client errors
	"transaction_system/internal/domain"     // Importing domain models
	"transaction_system/internal/repository" // List filters
	"transaction_system/internal/service"    // Business services
	"transaction_system/internal/utils"      // Cache helpers

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// UpsertTransactionRequest represents one upstream transaction sighting
type UpsertTransactionRequest struct {
	TransactionID      string          `json:"transaction_id" binding:"required"`       // External identifier
	Reference          string          `json:"reference" binding:"required"`            // Provider-facing reference
	Bank               string          `json:"bank" binding:"required"`                 // BANESCO or MOBILE_TRANSFER
	TransactionType    string          `json:"transaction_type" binding:"required"`     // TRANSACTION, COMMISSION or OTHER
	CustomerFullName   string          `json:"customer_full_name" binding:"required"`   // Customer name
	CustomerPhone      string          `json:"customer_phone" binding:"required"`       // Customer phone
	CustomerNationalID string          `json:"customer_national_id" binding:"required"` // Customer national id
	Concept            *string         `json:"concept"`                                 // Optional concept text
	BanescoPayload     json.RawMessage `json:"banesco_payload"`                         // Optional raw provider payload
	ExtraData          json.RawMessage `json:"extra_data"`                              // Optional extension map
}

// UpdateStatusRequest asks for one status transition
type UpdateStatusRequest struct {
	Status string  `json:"status" binding:"required"` // Target status
	Reason *string `json:"reason"`                    // Optional free-text reason
}

// UpsertTransactionHandler creates or updates a transaction by external id
func UpsertTransactionHandler(engine *service.ReconcileService, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpsertTransactionRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Validate the enumerated fields
		bank := domain.BankType(req.Bank)
		if !domain.IsValidBank(bank) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown bank"})
			return
		}
		txType := domain.TransactionType(req.TransactionType)
		if !domain.IsValidTransactionType(txType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown transaction type"})
			return
		}
		// The authenticated principal becomes the creator on first sighting
		var createdBy *string
		if userID, exists := c.Get("userID"); exists {
			id := userID.(string)
			createdBy = &id
		}
		transaction, created, err := engine.Upsert(c.Request.Context(), service.UpsertInput{
			TransactionID:      req.TransactionID,
			Reference:          req.Reference,
			Bank:               bank,
			TransactionType:    txType,
			CustomerFullName:   req.CustomerFullName,
			CustomerPhone:      req.CustomerPhone,
			CustomerNationalID: req.CustomerNationalID,
			Concept:            req.Concept,
			BanescoPayload:     req.BanescoPayload,
			ExtraData:          req.ExtraData,
			CreatedBy:          createdBy,
		})
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// Duplicate (reference, transaction_type) under a different external id
				c.JSON(http.StatusConflict, gin.H{"error": "Reference already exists for this transaction type"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save transaction"})
			return
		}
		// Invalidate the cached provider payload for this external id
		if rdb != nil {
			_ = utils.DeleteCache(context.Background(), rdb, utils.TransactionCacheKey(req.TransactionID))
		}
		// 201 for a first sighting, 200 when the delivery converged on an
		// existing record
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{"transaction": transaction})
	}
}

// GetTransactionHandler returns one transaction by internal id
func GetTransactionHandler(engine *service.ReconcileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		transaction, err := engine.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transaction"})
			return
		}
		if transaction == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction": transaction})
	}
}

// GetTransactionByExternalHandler returns one transaction by external id,
// with a Redis read-through cache
func GetTransactionByExternalHandler(engine *service.ReconcileService, rdb *redis.Client, cacheTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		externalID := c.Param("transactionID")
		ctx := c.Request.Context()
		cacheKey := utils.TransactionCacheKey(externalID)
		// Try the cache first; a cache error falls through to the store
		if rdb != nil {
			var cached domain.Transaction
			if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
				c.JSON(http.StatusOK, gin.H{"transaction": cached, "cached": true})
				return
			}
		}
		transaction, err := engine.GetByTransactionID(ctx, externalID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transaction"})
			return
		}
		if transaction == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		if rdb != nil {
			_ = utils.SetCache(ctx, rdb, cacheKey, transaction, cacheTTL) // Best effort
		}
		c.JSON(http.StatusOK, gin.H{"transaction": transaction, "cached": false})
	}
}

// GetTransactionByReferenceHandler returns one transaction by reference
func GetTransactionByReferenceHandler(engine *service.ReconcileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		transaction, err := engine.GetByReference(c.Request.Context(), c.Param("reference"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transaction"})
			return
		}
		if transaction == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction": transaction})
	}
}

// ListTransactionsHandler returns filtered, paginated transactions
func ListTransactionsHandler(engine *service.ReconcileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filters repository.ListFilters
		// Optional status filter
		if s := c.Query("status"); s != "" {
			status := domain.TransactionStatus(s)
			if !domain.IsValidStatus(status) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
				return
			}
			filters.Status = &status
		}
		// Optional reference filter
		if ref := c.Query("reference"); ref != "" {
			filters.Reference = &ref
		}
		// Optional phone filter
		if phone := c.Query("phone"); phone != "" {
			filters.Phone = &phone
		}
		// Optional creation-date range, RFC 3339
		if from := c.Query("from_date"); from != "" {
			t, err := time.Parse(time.RFC3339, from)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from_date"})
				return
			}
			filters.FromDate = &t
		}
		if to := c.Query("to_date"); to != "" {
			t, err := time.Parse(time.RFC3339, to)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to_date"})
				return
			}
			filters.ToDate = &t
		}
		limit := 50 // Default page size
		if l := c.Query("limit"); l != "" {
			if v, err := strconv.Atoi(l); err == nil && v > 0 {
				limit = v // The engine caps this at its hard maximum
			}
		}
		offset := 0 // Default offset
		if o := c.Query("offset"); o != "" {
			if v, err := strconv.Atoi(o); err == nil && v >= 0 {
				offset = v
			}
		}
		transactions, total, err := engine.List(c.Request.Context(), filters, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list transactions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"transactions": transactions, // Current page
			"total":        total,        // Filtered total before pagination
			"limit":        limit,        // Requested page size
			"offset":       offset,       // Requested offset
		})
	}
}

// UpdateStatusHandler moves a transaction through the status lifecycle
func UpdateStatusHandler(engine *service.ReconcileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateStatusRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		newStatus := domain.TransactionStatus(req.Status)
		if !domain.IsValidStatus(newStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
			return
		}
		// The authenticated principal is the acting user
		var actorID *string
		if userID, exists := c.Get("userID"); exists {
			id := userID.(string)
			actorID = &id
		}
		ok, err := engine.ChangeStatus(c.Request.Context(), c.Param("id"), newStatus, req.Reason, domain.ActorUser, actorID)
		if err != nil {
			if errors.Is(err, service.ErrInvalidTransition) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Status updated"})
	}
}

// OverrideStatusHandler is the administrative status override; it skips the
// transition graph but never leaves a terminal state
func OverrideStatusHandler(engine *service.ReconcileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateStatusRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		newStatus := domain.TransactionStatus(req.Status)
		if !domain.IsValidStatus(newStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
			return
		}
		var actorID *string
		if userID, exists := c.Get("userID"); exists {
			id := userID.(string)
			actorID = &id
		}
		ok, err := engine.ForceStatus(c.Request.Context(), c.Param("id"), newStatus, req.Reason, domain.ActorUser, actorID)
		if err != nil {
			if errors.Is(err, service.ErrInvalidTransition) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to override status"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Status overridden"})
	}
}

// DeleteTransactionHandler soft-deletes a transaction
func DeleteTransactionHandler(engine *service.ReconcileService, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		// Read the record first so the cache key can be invalidated
		transaction, err := engine.GetByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete transaction"})
			return
		}
		if transaction == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		ok, err := engine.Delete(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete transaction"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		// Invalidate the cached payload for this external id
		if rdb != nil {
			_ = utils.DeleteCache(context.Background(), rdb, utils.TransactionCacheKey(transaction.TransactionID))
		}
		c.JSON(http.StatusOK, gin.H{"message": "Transaction deleted"})
	}
}

// ListEventsHandler returns the audit trail of a transaction. The trail is
// served even after the transaction itself was soft-deleted.
func ListEventsHandler(engine *service.ReconcileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := engine.Events(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list events"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}

// RefreshTransactionHandler cross-checks one transaction against the Banesco
// ledger, gated by the internal rate limiter
func RefreshTransactionHandler(engine *service.ReconcileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		transaction, err := engine.RefreshFromBank(c.Request.Context(), c.Param("transactionID"))
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			case errors.Is(err, service.ErrLimitExceeded), errors.Is(err, banesco.ErrRateLimited):
				c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded, try again later"})
			case errors.Is(err, banesco.ErrTransactionNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found in Banesco"})
			case errors.Is(err, banesco.ErrTimeout):
				c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Banesco did not respond in time"})
			default:
				// Includes *banesco.APIError; no internal detail is leaked
				c.JSON(http.StatusBadGateway, gin.H{"error": "Operation failed, retry later"})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction": transaction})
	}
}
