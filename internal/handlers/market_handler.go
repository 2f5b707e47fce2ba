package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tradepost/marketcore/internal/config"
	"github.com/tradepost/marketcore/internal/incentives"
	"github.com/tradepost/marketcore/internal/ledger"
	"github.com/tradepost/marketcore/internal/market"
	"github.com/tradepost/marketcore/internal/stock"
	"github.com/tradepost/marketcore/internal/validation"
)

// HandlerConfig groups dependencies for the market routes.
type HandlerConfig struct {
	Service  *market.Service
	Settings *config.Store
}

// privileged reads the caller-asserted privilege flag. Verifying the caller's
// identity is the front end's job; the core only honors the explicit flag.
func privileged(c *gin.Context) bool {
	return c.GetHeader("X-Privileged") == "true"
}

// renderError maps core sentinels to HTTP statuses with a structured kind.
func renderError(c *gin.Context, err error) {
	var status int
	var kind string
	switch {
	case errors.Is(err, market.ErrNotFound),
		errors.Is(err, stock.ErrNotFound),
		errors.Is(err, incentives.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, config.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, market.ErrNoUnpaidOrder):
		status, kind = http.StatusNotFound, "no_unpaid_order"
	case errors.Is(err, market.ErrUnauthorized):
		status, kind = http.StatusForbidden, "unauthorized"
	case errors.Is(err, market.ErrNotOwned):
		status, kind = http.StatusForbidden, "not_owned"
	case errors.Is(err, market.ErrInvalidState):
		status, kind = http.StatusConflict, "invalid_state"
	case errors.Is(err, stock.ErrInsufficientStock):
		status, kind = http.StatusConflict, "insufficient_stock"
	case errors.Is(err, stock.ErrNoPayloads):
		status, kind = http.StatusConflict, "no_payloads"
	case errors.Is(err, incentives.ErrDiscountExhausted):
		status, kind = http.StatusConflict, "discount_exhausted"
	case errors.Is(err, incentives.ErrAlreadyExists):
		status, kind = http.StatusConflict, "already_exists"
	case errors.Is(err, market.ErrPlacementInProgress):
		status, kind = http.StatusAccepted, "placement_in_progress"
	case errors.Is(err, market.ErrWrongKind):
		status, kind = http.StatusBadRequest, "wrong_kind"
	case errors.Is(err, market.ErrInvalidArgument):
		status, kind = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, market.ErrDeliveryUnavailable):
		status, kind = http.StatusBadGateway, "delivery_unavailable"
	case errors.Is(err, market.ErrNotificationFailed):
		status, kind = http.StatusBadGateway, "notification_failed"
	default:
		status, kind = http.StatusInternalServerError, "internal"
	}
	c.JSON(status, gin.H{"error": kind, "detail": err.Error()})
}

// RegisterMarketRoutes registers every core operation on the gin engine.
func RegisterMarketRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	svc := cfg.Service

	// --- stock ---

	r.GET("/stock", func(c *gin.Context) {
		items, err := svc.ListItems(c.Request.Context())
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	})

	r.GET("/stock/:name", func(c *gin.Context) {
		item, err := svc.GetItem(c.Request.Context(), c.Param("name"))
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})

	r.POST("/stock", func(c *gin.Context) {
		var req validation.UpsertItemRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		if err := svc.UpsertItem(c.Request.Context(), req.Name, req.Price, req.Kind, privileged(c)); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": req.Name})
	})

	r.POST("/stock/:name/adjust", func(c *gin.Context) {
		var req validation.AdjustStockRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		if err := svc.AdjustStock(c.Request.Context(), c.Param("name"), req.Delta, privileged(c)); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "delta": req.Delta})
	})

	r.POST("/stock/:name/price", func(c *gin.Context) {
		var req validation.SetPriceRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		if err := svc.SetItemPrice(c.Request.Context(), c.Param("name"), req.Price, privileged(c)); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "price": req.Price})
	})

	r.POST("/stock/:name/clear", func(c *gin.Context) {
		if err := svc.ZeroStock(c.Request.Context(), c.Param("name"), privileged(c)); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "qty": 0})
	})

	// --- hidden inventory ---

	r.GET("/hidden", func(c *gin.Context) {
		cats, err := svc.ListHiddenCategories(c.Request.Context())
		if err != nil {
			renderError(c, err)
			return
		}
		// expose counts, never the payloads themselves
		out := make([]gin.H, 0, len(cats))
		for _, cat := range cats {
			out = append(out, gin.H{"name": cat.Name, "price": cat.Price, "available": len(cat.Payloads)})
		}
		c.JSON(http.StatusOK, gin.H{"categories": out})
	})

	r.POST("/hidden", func(c *gin.Context) {
		var req validation.CreateHiddenCategoryRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		if err := svc.CreateHiddenCategory(c.Request.Context(), req.Name, req.Price, privileged(c)); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"name": req.Name})
	})

	r.POST("/hidden/:name/payloads", func(c *gin.Context) {
		var req validation.PushPayloadRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		if err := svc.PushHiddenPayload(c.Request.Context(), c.Param("name"), req.Payload, privileged(c)); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"name": c.Param("name")})
	})

	// --- orders ---

	r.POST("/orders/instant", func(c *gin.Context) {
		var req validation.PlaceInstantOrderRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		qty := req.Quantity
		if qty == 0 {
			qty = 1
		}
		order, err := svc.PlaceInstantOrder(c.Request.Context(), req.RequesterID, req.Item, qty, c.GetHeader("Idempotency-Key"))
		if err != nil {
			renderError(c, err)
			return
		}
		c.Header("Location", "/orders/"+order.OrderID)
		c.JSON(http.StatusCreated, gin.H{"order_id": order.OrderID, "price": order.Price, "status": order.Status})
	})

	r.POST("/orders/custom", func(c *gin.Context) {
		var req validation.PlaceCustomOrderRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		order, err := svc.PlaceCustomOrder(c.Request.Context(), req.RequesterID, req.Item, req.Description, c.GetHeader("Idempotency-Key"))
		if err != nil {
			renderError(c, err)
			return
		}
		c.Header("Location", "/orders/"+order.OrderID)
		c.JSON(http.StatusCreated, gin.H{"order_id": order.OrderID, "status": order.Status})
	})

	r.GET("/orders", func(c *gin.Context) {
		requester := c.Query("requester_id")
		if requester == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_requester_id"})
			return
		}
		list, err := svc.ListOrders(c.Request.Context(), requester)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": list})
	})

	r.GET("/orders/:id", func(c *gin.Context) {
		order, err := svc.GetOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	})

	r.POST("/orders/:id/accept", func(c *gin.Context) {
		var req validation.AcceptOrderRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		notified, err := svc.AcceptCustomOrder(c.Request.Context(), c.Param("id"), req.Price, privileged(c))
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "notified": notified})
	})

	r.POST("/orders/:id/reject", func(c *gin.Context) {
		notified, err := svc.RejectCustomOrder(c.Request.Context(), c.Param("id"), privileged(c))
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "notified": notified})
	})

	r.POST("/orders/cancel", func(c *gin.Context) {
		var req validation.CancelOrderRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		ctx := c.Request.Context()
		switch {
		case req.All:
			n, err := svc.CancelAll(ctx, req.RequesterID)
			if err != nil {
				renderError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"cancelled": n})
		case req.OrderID != "":
			if err := svc.CancelOrder(ctx, req.RequesterID, req.OrderID); err != nil {
				renderError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"cancelled": 1, "order_id": req.OrderID})
		default:
			order, err := svc.CancelLatest(ctx, req.RequesterID)
			if err != nil {
				renderError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"cancelled": 1, "order_id": order.OrderID})
		}
	})

	r.POST("/orders/:id/deliver", func(c *gin.Context) {
		var req validation.DeliverRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		if err := svc.Deliver(c.Request.Context(), c.Param("id"), req.Content, privileged(c)); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "delivered": true})
	})

	r.POST("/orders/:id/retry-delivery", func(c *gin.Context) {
		var req validation.RetryDeliveryRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		if err := svc.RetryDelivery(c.Request.Context(), req.RequesterID, c.Param("id")); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "delivered": true})
	})

	// --- payments ---

	r.POST("/payments/confirm", func(c *gin.Context) {
		var req validation.ConfirmPaymentRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		res, err := svc.ConfirmPayment(c.Request.Context(), req.RequesterID)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"order_id": res.Order.OrderID,
			"status":   res.Order.Status,
			"notified": res.Notified,
		})
	})

	r.POST("/payments", func(c *gin.Context) {
		var req validation.RecordPaymentRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		id, err := svc.RecordPayment(c.Request.Context(), req.RequesterID, req.Amount, req.Currency)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"payment_id": id})
	})

	r.GET("/payments/unmatched", func(c *gin.Context) {
		payments, err := svc.ListUnmatchedPayments(c.Request.Context())
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"payments": payments})
	})

	r.POST("/payments/:id/match", func(c *gin.Context) {
		if err := svc.MatchPayment(c.Request.Context(), c.Param("id"), privileged(c)); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"payment_id": c.Param("id"), "matched": true})
	})

	// --- incentives ---

	r.POST("/discounts", func(c *gin.Context) {
		var req validation.CreateDiscountRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		if err := svc.CreateDiscount(c.Request.Context(), req.Code, req.Percent, req.Uses, privileged(c)); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": req.Code})
	})

	r.GET("/discounts/:code", func(c *gin.Context) {
		d, err := svc.GetDiscount(c.Request.Context(), c.Param("code"))
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	r.POST("/discounts/:code/use", func(c *gin.Context) {
		percent, err := svc.UseDiscount(c.Request.Context(), c.Param("code"))
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": c.Param("code"), "percent": percent})
	})

	r.PUT("/rewards/trigger", func(c *gin.Context) {
		var req validation.RewardTriggerRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		if err := svc.SetRewardTrigger(c.Request.Context(), req.Orders, req.Percent, req.Uses, privileged(c)); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": req.Orders, "percent": req.Percent, "uses": req.Uses})
	})

	r.GET("/rewards/status", func(c *gin.Context) {
		requester := c.Query("requester_id")
		if requester == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_requester_id"})
			return
		}
		status, err := svc.RewardStatus(c.Request.Context(), requester)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	// --- audit ---

	r.GET("/events", func(c *gin.Context) {
		n := 20
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
				return
			}
			n = parsed
		}
		events, err := svc.RecentEvents(c.Request.Context(), n)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	})

	r.GET("/deliveries/failed", func(c *gin.Context) {
		fails, err := svc.ListFailedDeliveries(c.Request.Context())
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"failed_deliveries": fails})
	})

	// --- runtime settings ---

	r.GET("/settings/:key", func(c *gin.Context) {
		value, err := cfg.Settings.Get(c.Request.Context(), c.Param("key"))
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": c.Param("key"), "value": value})
	})

	r.PUT("/settings/:key", func(c *gin.Context) {
		if !privileged(c) {
			renderError(c, market.ErrUnauthorized)
			return
		}
		var req validation.SetConfigRequest
		if !validation.BindAndValidate(c, &req, v) {
			return
		}
		if err := cfg.Settings.Set(c.Request.Context(), c.Param("key"), req.Value); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": c.Param("key"), "value": req.Value})
	})
}
