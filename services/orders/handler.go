package orders

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/enset/storefront/common/correlation"
	"github.com/enset/storefront/common/headers"
	"github.com/enset/storefront/common/logger"
	"github.com/enset/storefront/store"
)

// Handler exposes the order REST surface.
type Handler struct {
	repo     store.Repository[Order]
	products ProductCatalog
	now      func() time.Time
}

// NewHandler returns a Handler storing orders in repo and checking items against products.
func NewHandler(repo store.Repository[Order], products ProductCatalog) *Handler {
	return &Handler{repo: repo, products: products, now: time.Now}
}

// NewMemoryRepository returns an in-memory order repository.
func NewMemoryRepository() *store.Memory[Order] {
	return store.NewMemory(setID)
}

// Register mounts the routes under /orders.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/orders")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/search", h.search)
	g.GET("/amount-range", h.amountRange)
	g.GET("/date-range", h.dateRange)
	g.GET("/stats", h.stats)
	g.GET("/admin", h.admin)
	g.GET("/customer/:email", h.byCustomer)
	g.GET("/status/:status", h.byStatus)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.PATCH("/:id/status", h.updateStatus)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	h.respondList(c, nil)
}

func (h *Handler) get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.repo.Find(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) create(c *gin.Context) {
	var o Order
	if err := c.ShouldBindJSON(&o); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(o.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "an order needs at least one item"})
		return
	}
	ctx := c.Request.Context()

	// Items are priced from the catalogue, not from the request.
	authorization := c.GetHeader(headers.HeaderAuthorization)
	for i := range o.Items {
		p, err := h.products.Product(ctx, authorization, o.Items[i].ProductID)
		if err != nil {
			respondError(c, err)
			return
		}
		o.Items[i].ProductName = p.Name
		o.Items[i].UnitPrice = p.Price
	}
	o.total()
	if o.Status == "" {
		o.Status = StatusPending
	}
	now := h.now()
	o.CreatedAt, o.UpdatedAt = now, now

	saved, err := h.repo.Save(ctx, 0, o)
	if err != nil {
		respondError(c, err)
		return
	}
	logger.FromContext(ctx).Info("order created",
		logger.Int64("order_id", saved.ID),
		logger.Int("items", len(saved.Items)),
	)
	c.JSON(http.StatusCreated, saved)
}

type orderUpdate struct {
	CustomerName  string `json:"customerName" binding:"required"`
	CustomerEmail string `json:"customerEmail" binding:"required,email"`
	Status        string `json:"status"`
}

func (h *Handler) update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in orderUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	o, err := h.repo.Find(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if in.Status != "" {
		st, err := ParseStatus(in.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		o.Status = st
	}
	o.CustomerName = in.CustomerName
	o.CustomerEmail = in.CustomerEmail
	h.save(c, o)
}

func (h *Handler) updateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	st, err := ParseStatus(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	o, err := h.repo.Find(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	o.Status = st
	h.save(c, o)
}

func (h *Handler) save(c *gin.Context, o Order) {
	o.UpdatedAt = h.now()
	saved, err := h.repo.Save(c.Request.Context(), o.ID, o)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *Handler) delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) byCustomer(c *gin.Context) {
	email := c.Param("email")
	h.respondList(c, func(o Order) bool {
		return strings.EqualFold(o.CustomerEmail, email)
	})
}

func (h *Handler) byStatus(c *gin.Context) {
	st, err := ParseStatus(c.Param("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respondList(c, func(o Order) bool {
		return o.Status == st
	})
}

func (h *Handler) search(c *gin.Context) {
	name := strings.ToLower(strings.TrimSpace(c.Query("name")))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	h.respondList(c, func(o Order) bool {
		return strings.Contains(strings.ToLower(o.CustomerName), name)
	})
}

func (h *Handler) amountRange(c *gin.Context) {
	minAmount, errMin := strconv.ParseFloat(c.Query("minAmount"), 64)
	maxAmount, errMax := strconv.ParseFloat(c.Query("maxAmount"), 64)
	if errMin != nil || errMax != nil || minAmount > maxAmount {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minAmount and maxAmount must be numbers with minAmount <= maxAmount"})
		return
	}
	h.respondList(c, func(o Order) bool {
		return o.TotalAmount >= minAmount && o.TotalAmount <= maxAmount
	})
}

func (h *Handler) dateRange(c *gin.Context) {
	start, errStart := time.Parse(time.RFC3339, c.Query("startDate"))
	end, errEnd := time.Parse(time.RFC3339, c.Query("endDate"))
	if errStart != nil || errEnd != nil || end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startDate and endDate must be RFC 3339 timestamps with startDate <= endDate"})
		return
	}
	h.respondList(c, func(o Order) bool {
		return !o.CreatedAt.Before(start) && !o.CreatedAt.After(end)
	})
}

func (h *Handler) stats(c *gin.Context) {
	all, err := h.repo.FindAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	s := Stats{Count: len(all), ByStatus: make(map[Status]int, len(statuses))}
	for _, st := range statuses {
		s.ByStatus[st] = 0
	}
	for _, o := range all {
		s.ByStatus[o.Status]++
		if o.Status != StatusCancelled {
			s.Revenue += o.TotalAmount
		}
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) admin(c *gin.Context) {
	rc, _ := correlation.FromContext(c.Request.Context())
	c.String(http.StatusOK, "Order management (ADMIN) : "+rc.Identity())
}

func (h *Handler) respondList(c *gin.Context, match func(Order) bool) {
	found, err := h.repo.FindBy(c.Request.Context(), match)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, ErrUnknownProduct):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown_product", "error_description": err.Error()})
	case errors.Is(err, ErrProductsUnavailable):
		logger.FromContext(c.Request.Context()).Warn("products lookup failed", logger.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "bad_gateway"})
	default:
		_ = c.Error(err)
	}
}
