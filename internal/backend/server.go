package backend

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cadm/internal/domain"
	"github.com/vladislavdragonenkov/cadm/internal/health"
	"github.com/vladislavdragonenkov/cadm/internal/media"
	"github.com/vladislavdragonenkov/cadm/internal/storage/redisguard"
)

const dateParamLayout = "2006-01-02"

// Server — эталонный каталожный бэкенд: REST-контракт, который
// потребляет движок синхронизации. Redis-гвард и медиахранилище
// опциональны; без них бэкенд работает в урезанном режиме.
type Server struct {
	orders   domain.OrderRepository
	products domain.ProductRepository
	guard    *redisguard.Guard
	media    *media.Store
	health   *health.Handler
	logger   *log.Entry
}

// NewServer собирает бэкенд поверх репозиториев. guard и mediaStore могут быть nil.
func NewServer(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	guard *redisguard.Guard,
	mediaStore *media.Store,
	healthHandler *health.Handler,
	logger *log.Entry,
) *Server {
	if logger == nil {
		logger = log.New().WithField("component", "catalog-backend")
	}
	return &Server{
		orders:   orders,
		products: products,
		guard:    guard,
		media:    mediaStore,
		health:   healthHandler,
		logger:   logger,
	}
}

// Routes регистрирует все HTTP-маршруты бэкенда.
func (s *Server) Routes(r *gin.Engine) {
	r.GET("/healthz", gin.WrapH(s.health))
	r.GET("/livez", gin.WrapF(health.LivenessHandler))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/orders", s.listOrders)
		api.POST("/orders", s.createOrder)
		api.PUT("/orders/:id", s.updateOrder)
		api.PUT("/orders/:id/status", s.updateOrderStatus)
		api.DELETE("/orders/:id", s.deleteOrder)

		api.GET("/products", s.listProducts)
		api.POST("/products", s.createProduct)
		api.PUT("/products/:id", s.updateProduct)
		api.DELETE("/products/:id", s.deleteProduct)
		api.POST("/products/:id/images", s.uploadProductImage)

		api.POST("/update-stock", s.updateStock)
		api.POST("/send-to-courier", s.sendToCourier)
	}
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

type stockRequest struct {
	AdjustmentID string                   `json:"adjustmentId"`
	Adjustments  []domain.StockAdjustment `json:"adjustments"`
}

func (s *Server) listOrders(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	page, err := s.orders.List(q)
	if err != nil {
		s.fail(c, err, "list orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": page.Items, "hasMore": page.HasMore})
}

func (s *Server) createOrder(c *gin.Context) {
	var order domain.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid order payload"})
		return
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	order.Version = 0

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": errs[0].Error()})
		return
	}

	if err := s.orders.Create(order); err != nil {
		s.fail(c, err, "create order")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

func (s *Server) updateOrder(c *gin.Context) {
	var order domain.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid order payload"})
		return
	}
	order.ID = c.Param("id")
	order.UpdatedAt = time.Now().UTC()

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": errs[0].Error()})
		return
	}

	if err := s.orders.Save(order); err != nil {
		s.fail(c, err, "update order")
		return
	}

	updated, err := s.orders.Get(order.ID)
	if err != nil {
		s.fail(c, err, "reload order")
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": updated})
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid status payload"})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"message": domain.ErrStatusInvalid.Error()})
		return
	}

	order, err := s.orders.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err, "load order")
		return
	}

	if order.Status != req.Status {
		if !domain.CanTransition(order.Status, req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"message": domain.ErrTransitionInvalid.Error()})
			return
		}
		order.Status = req.Status
		order.UpdatedAt = time.Now().UTC()
		if err := s.orders.Save(order); err != nil {
			s.fail(c, err, "save status")
			return
		}
		order, err = s.orders.Get(order.ID)
		if err != nil {
			s.fail(c, err, "reload order")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (s *Server) deleteOrder(c *gin.Context) {
	if err := s.orders.Delete(c.Param("id")); err != nil {
		s.fail(c, err, "delete order")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "order deleted"})
}

func (s *Server) listProducts(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	page, err := s.products.List(q)
	if err != nil {
		s.fail(c, err, "list products")
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": page.Items, "hasMore": page.HasMore})
}

func (s *Server) createProduct(c *gin.Context) {
	var product domain.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid product payload"})
		return
	}

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	product.Version = 0

	if errs := product.ValidateInvariants(); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": errs[0].Error()})
		return
	}

	if err := s.products.Create(product); err != nil {
		s.fail(c, err, "create product")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": product})
}

func (s *Server) updateProduct(c *gin.Context) {
	var product domain.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid product payload"})
		return
	}
	product.ID = c.Param("id")
	product.UpdatedAt = time.Now().UTC()

	if errs := product.ValidateInvariants(); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": errs[0].Error()})
		return
	}

	if err := s.products.Save(product); err != nil {
		s.fail(c, err, "update product")
		return
	}

	updated, err := s.products.Get(product.ID)
	if err != nil {
		s.fail(c, err, "reload product")
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": updated})
}

func (s *Server) deleteProduct(c *gin.Context) {
	if err := s.products.Delete(c.Param("id")); err != nil {
		s.fail(c, err, "delete product")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
}

// uploadProductImage принимает multipart-файл и кладёт его в
// медиахранилище; товар при этом не мутируется — клиент сам добавляет
// полученный URL в карточку.
func (s *Server) uploadProductImage(c *gin.Context) {
	if s.media == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "media store is not configured"})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "image file required"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "cannot read image file"})
		return
	}
	defer src.Close()

	key, publicURL, err := s.media.Put(
		c.Request.Context(),
		c.Param("id"),
		file.Filename,
		file.Header.Get("Content-Type"),
		src,
	)
	if err != nil {
		s.logger.WithError(err).Warn("media upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "media upload failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key, "url": publicURL})
}

// updateStock применяет батч приращений. При настроенном Redis-гварде
// повтор того же adjustmentId — no-op с кодом 200.
func (s *Server) updateStock(c *gin.Context) {
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid stock payload"})
		return
	}
	if len(req.Adjustments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "adjustments required"})
		return
	}

	if s.guard != nil && req.AdjustmentID != "" {
		acquired, err := s.guard.Acquire(c.Request.Context(), req.AdjustmentID)
		if err != nil {
			s.logger.WithError(err).Warn("stock guard unavailable")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "stock guard unavailable"})
			return
		}
		if !acquired {
			c.JSON(http.StatusOK, gin.H{"message": "adjustment already applied"})
			return
		}
	}

	if err := s.products.AdjustStock(req.Adjustments); err != nil {
		// Откат отметки: неудавшийся батч можно повторить.
		if s.guard != nil && req.AdjustmentID != "" {
			if releaseErr := s.guard.Release(c.Request.Context(), req.AdjustmentID); releaseErr != nil {
				s.logger.WithError(releaseErr).Warn("failed to release stock guard")
			}
		}
		s.fail(c, err, "adjust stock")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "stock updated"})
}

// sendToCourier — заглушка интеграции со службой доставки: валидирует
// заказ и подтверждает приём. Реальная интеграция живёт за этим маршрутом.
func (s *Server) sendToCourier(c *gin.Context) {
	var order domain.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid order payload"})
		return
	}
	if order.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "order id required"})
		return
	}

	stored, err := s.orders.Get(order.ID)
	if err != nil {
		s.fail(c, err, "load order for courier")
		return
	}
	if stored.Status.Dispatched() {
		c.JSON(http.StatusBadRequest, gin.H{"message": domain.ErrAlreadyDispatched.Error()})
		return
	}

	s.logger.WithFields(log.Fields{
		"order_id": stored.ID,
		"address":  stored.Address,
	}).Info("order handed over to courier")
	c.JSON(http.StatusOK, gin.H{"message": "order dispatched"})
}

// fail транслирует доменные ошибки в HTTP-коды контракта.
func (s *Server) fail(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	case errors.Is(err, domain.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	case errors.Is(err, domain.ErrSizeNotFound), errors.Is(err, domain.ErrStockNegative):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		s.logger.WithError(err).Error(op + " failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}

// parseListQuery разбирает общие параметры списочных маршрутов.
func parseListQuery(c *gin.Context) (domain.Query, error) {
	q := domain.Query{
		Filter: domain.Filter{
			Search:   c.Query("search"),
			Category: c.Query("category"),
		},
		After: c.Query("after"),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return domain.Query{}, errors.New("invalid limit")
		}
		q.Limit = limit
	}
	if raw := c.Query("startDate"); raw != "" {
		from, err := time.Parse(dateParamLayout, raw)
		if err != nil {
			return domain.Query{}, errors.New("invalid startDate")
		}
		q.DateFrom = from
	}
	if raw := c.Query("endDate"); raw != "" {
		to, err := time.Parse(dateParamLayout, raw)
		if err != nil {
			return domain.Query{}, errors.New("invalid endDate")
		}
		// Конец дня включительно.
		q.DateTo = to.Add(24*time.Hour - time.Nanosecond)
	}

	q.Filter = q.Filter.Normalize()
	return q, nil
}
