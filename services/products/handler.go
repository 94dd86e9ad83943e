package products

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/enset/storefront/common/correlation"
	"github.com/enset/storefront/common/logger"
	"github.com/enset/storefront/store"
)

const defaultLowStockThreshold = 10

// Handler exposes the product REST surface.
type Handler struct {
	repo store.Repository[Product]
	now  func() time.Time
}

// NewHandler returns a Handler over repo.
func NewHandler(repo store.Repository[Product]) *Handler {
	return &Handler{repo: repo, now: time.Now}
}

// NewMemoryRepository returns an in-memory product repository.
func NewMemoryRepository() *store.Memory[Product] {
	return store.NewMemory(setID)
}

// Register mounts the routes under /products.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/products")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/search", h.search)
	g.GET("/price-range", h.priceRange)
	g.GET("/low-stock", h.lowStock)
	g.GET("/out-of-stock", h.outOfStock)
	g.GET("/admin", h.admin)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
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
	p, err := h.repo.Find(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) create(c *gin.Context) {
	var p Product
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	now := h.now()
	p.CreatedAt, p.UpdatedAt = now, now

	saved, err := h.repo.Save(c.Request.Context(), 0, p)
	if err != nil {
		respondError(c, err)
		return
	}
	logger.FromContext(c.Request.Context()).Info("product created", logger.Int64("product_id", saved.ID))
	c.JSON(http.StatusCreated, saved)
}

func (h *Handler) update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	existing, err := h.repo.Find(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	var p Product
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = h.now()

	saved, err := h.repo.Save(ctx, id, p)
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

func (h *Handler) search(c *gin.Context) {
	name := strings.ToLower(strings.TrimSpace(c.Query("name")))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	h.respondList(c, func(p Product) bool {
		return strings.Contains(strings.ToLower(p.Name), name)
	})
}

func (h *Handler) priceRange(c *gin.Context) {
	minPrice, errMin := strconv.ParseFloat(c.Query("minPrice"), 64)
	maxPrice, errMax := strconv.ParseFloat(c.Query("maxPrice"), 64)
	if errMin != nil || errMax != nil || minPrice > maxPrice {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minPrice and maxPrice must be numbers with minPrice <= maxPrice"})
		return
	}
	h.respondList(c, func(p Product) bool {
		return p.Price >= minPrice && p.Price <= maxPrice
	})
}

func (h *Handler) lowStock(c *gin.Context) {
	threshold := defaultLowStockThreshold
	if raw := c.Query("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be a non-negative integer"})
			return
		}
		threshold = n
	}
	h.respondList(c, func(p Product) bool {
		return p.Quantity < threshold
	})
}

func (h *Handler) outOfStock(c *gin.Context) {
	h.respondList(c, func(p Product) bool {
		return p.Quantity == 0
	})
}

func (h *Handler) admin(c *gin.Context) {
	rc, _ := correlation.FromContext(c.Request.Context())
	c.String(http.StatusOK, "Product management (ADMIN) : "+rc.Identity())
}

func (h *Handler) respondList(c *gin.Context, match func(Product) bool) {
	products, err := h.repo.FindBy(c.Request.Context(), match)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// Seed stores a few products so a fresh local stack has data to browse.
func Seed(ctx context.Context, repo store.Repository[Product], now time.Time) error {
	for _, p := range []Product{
		{Name: "Laptop", Description: "14 inch ultrabook", Price: 1299.99, Quantity: 15},
		{Name: "Mechanical keyboard", Description: "Brown switches", Price: 89.90, Quantity: 40},
		{Name: "USB-C dock", Description: "Dual display", Price: 149.00, Quantity: 5},
		{Name: "Webcam", Description: "1080p", Price: 59.99, Quantity: 0},
	} {
		p.CreatedAt, p.UpdatedAt = now, now
		if _, err := repo.Save(ctx, 0, p); err != nil {
			return errors.Wrap(err, "seeding products")
		}
	}
	return nil
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
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	_ = c.Error(err)
}
