package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cadm/internal/client"
	"github.com/vladislavdragonenkov/cadm/internal/domain"
	"github.com/vladislavdragonenkov/cadm/internal/metrics"
	"github.com/vladislavdragonenkov/cadm/internal/mirror"
	"github.com/vladislavdragonenkov/cadm/internal/service/transition"
)

// Agent держит материализованные представления заказов и каталога,
// контроллеры их выборки и машину переходов, и выставляет локальную
// операционную HTTP-поверхность над ними.
type Agent struct {
	rest *client.Client

	ordersCtrl    *mirror.Controller[domain.Order]
	ordersApplier *mirror.Applier[domain.Order]
	ordersAnchor  *mirror.SentinelTrigger[domain.Order]

	productsCtrl    *mirror.Controller[domain.Product]
	productsApplier *mirror.Applier[domain.Product]
	productsAnchor  *mirror.SentinelTrigger[domain.Product]

	machine *transition.Machine
	metrics *metrics.SyncMetrics
	logger  *log.Entry
}

type filterRequest struct {
	Search    string `json:"search"`
	Category  string `json:"category"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type sentinelRequest struct {
	Visible bool `json:"visible"`
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (f filterRequest) toFilter() (domain.Filter, error) {
	filter := domain.Filter{Search: f.Search, Category: f.Category}
	if f.StartDate != "" {
		from, err := time.Parse("2006-01-02", f.StartDate)
		if err != nil {
			return domain.Filter{}, errors.New("invalid startDate")
		}
		filter.DateFrom = from
	}
	if f.EndDate != "" {
		to, err := time.Parse("2006-01-02", f.EndDate)
		if err != nil {
			return domain.Filter{}, errors.New("invalid endDate")
		}
		filter.DateTo = to.Add(24*time.Hour - time.Nanosecond)
	}
	return filter.Normalize(), nil
}

// Routes регистрирует операционную поверхность агента.
func (a *Agent) Routes(r *gin.Engine) {
	r.GET("/view/orders", a.viewOrders)
	r.POST("/view/orders/filter", a.filterOrders)
	r.POST("/view/orders/sentinel", a.ordersSentinel)

	r.GET("/view/products", a.viewProducts)
	r.POST("/view/products/filter", a.filterProducts)
	r.POST("/view/products/sentinel", a.productsSentinel)

	r.POST("/orders", a.createOrder)
	r.PUT("/orders/:id", a.updateOrder)
	r.POST("/orders/:id/status", a.changeOrderStatus)
	r.POST("/orders/:id/dispatch", a.dispatchOrder)
	r.DELETE("/orders/:id", a.deleteOrder)

	r.POST("/products", a.createProduct)
	r.PUT("/products/:id", a.updateProduct)
	r.DELETE("/products/:id", a.deleteProduct)
}

func (a *Agent) viewOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"orders":  a.ordersCtrl.View().Snapshot(),
		"hasMore": a.ordersCtrl.HasMore(),
	})
}

func (a *Agent) filterOrders(c *gin.Context) {
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid filter payload"})
		return
	}
	filter, err := req.toFilter()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if err := a.ordersCtrl.Replace(c.Request.Context(), filter); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"message": err.Error()})
		return
	}
	a.viewOrders(c)
}

func (a *Agent) ordersSentinel(c *gin.Context) {
	var req sentinelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid sentinel payload"})
		return
	}
	if err := a.ordersAnchor.Observe(c.Request.Context(), req.Visible); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"message": err.Error()})
		return
	}
	a.viewOrders(c)
}

func (a *Agent) viewProducts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"products": a.productsCtrl.View().Snapshot(),
		"hasMore":  a.productsCtrl.HasMore(),
	})
}

func (a *Agent) filterProducts(c *gin.Context) {
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid filter payload"})
		return
	}
	filter, err := req.toFilter()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if err := a.productsCtrl.Replace(c.Request.Context(), filter); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"message": err.Error()})
		return
	}
	a.viewProducts(c)
}

func (a *Agent) productsSentinel(c *gin.Context) {
	var req sentinelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid sentinel payload"})
		return
	}
	if err := a.productsAnchor.Observe(c.Request.Context(), req.Visible); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"message": err.Error()})
		return
	}
	a.viewProducts(c)
}

func (a *Agent) createOrder(c *gin.Context) {
	var order domain.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid order payload"})
		return
	}
	created, err := a.rest.Orders().Create(c.Request.Context(), order)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.ordersApplier.ApplyCreate(created)
	c.JSON(http.StatusCreated, gin.H{"order": created})
}

func (a *Agent) updateOrder(c *gin.Context) {
	var order domain.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid order payload"})
		return
	}
	order.ID = c.Param("id")
	updated, err := a.rest.Orders().Update(c.Request.Context(), order)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.ordersApplier.ApplyUpdate(updated)
	c.JSON(http.StatusOK, gin.H{"order": updated})
}

// changeOrderStatus переводит материализованный заказ в новый статус.
// Предупреждение второй фазы (склад) отдаётся в ответе отдельным полем,
// не меняя код успеха: статус уже зафиксирован.
func (a *Agent) changeOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid status payload"})
		return
	}

	order, ok := a.ordersCtrl.View().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": domain.ErrOrderNotFound.Error()})
		return
	}

	result, err := a.machine.ChangeStatus(c.Request.Context(), order, req.Status)
	if err != nil {
		a.fail(c, err)
		return
	}

	resp := gin.H{"order": result.Order}
	if result.StockWarning != nil {
		resp["stockWarning"] = result.StockWarning.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (a *Agent) dispatchOrder(c *gin.Context) {
	order, ok := a.ordersCtrl.View().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": domain.ErrOrderNotFound.Error()})
		return
	}

	result, err := a.machine.Dispatch(c.Request.Context(), order)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": result.Order})
}

func (a *Agent) deleteOrder(c *gin.Context) {
	id := c.Param("id")
	if err := a.rest.Orders().Delete(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	a.ordersApplier.ApplyDelete(id)
	c.JSON(http.StatusOK, gin.H{"message": "order deleted"})
}

func (a *Agent) createProduct(c *gin.Context) {
	var product domain.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid product payload"})
		return
	}
	created, err := a.rest.Products().Create(c.Request.Context(), product)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.productsApplier.ApplyCreate(created)
	c.JSON(http.StatusCreated, gin.H{"product": created})
}

func (a *Agent) updateProduct(c *gin.Context) {
	var product domain.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid product payload"})
		return
	}
	product.ID = c.Param("id")
	updated, err := a.rest.Products().Update(c.Request.Context(), product)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.productsApplier.ApplyUpdate(updated)
	c.JSON(http.StatusOK, gin.H{"product": updated})
}

func (a *Agent) deleteProduct(c *gin.Context) {
	id := c.Param("id")
	if err := a.rest.Products().Delete(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	a.productsApplier.ApplyDelete(id)
	c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
}

func (a *Agent) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	case errors.Is(err, domain.ErrTransitionInvalid), errors.Is(err, domain.ErrStatusInvalid),
		errors.Is(err, domain.ErrAlreadyDispatched):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, domain.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	case domain.IsTransient(err):
		c.JSON(http.StatusBadGateway, gin.H{"message": err.Error()})
	default:
		a.logger.WithError(err).Error("operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}

// refreshLoop периодически перевыбирает оба представления под их
// активными фильтрами, чтобы локальная копия не расходилась с бэкендом
// надолго. Ошибки не фатальны: следующий тик повторит попытку.
func (a *Agent) refreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refresh(ctx)
		}
	}
}

func (a *Agent) refresh(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.ordersCtrl.Replace(ctx, a.ordersCtrl.ActiveFilter()); err != nil {
			a.logger.WithError(err).Warn("orders refresh failed")
		}
	}()
	go func() {
		defer wg.Done()
		if err := a.productsCtrl.Replace(ctx, a.productsCtrl.ActiveFilter()); err != nil {
			a.logger.WithError(err).Warn("products refresh failed")
		}
	}()
	wg.Wait()
}
