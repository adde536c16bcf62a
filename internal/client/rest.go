package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cadm/internal/domain"
)

const dateParamLayout = "2006-01-02"

// Client — JSON/HTTP клиент каталожного бэкенда. Коллекционные порты
// выдаются типизированными фасадами Orders() и Products(); сам клиент
// реализует domain.StockAPI и domain.CourierAPI.
//
// Сетевые и серверные (5xx) ошибки заворачиваются в domain.ErrTransient;
// прикладные ошибки бэкенда транслируются в доменные sentinel-ошибки.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Entry
}

var (
	_ domain.OrderAPI   = (*OrdersClient)(nil)
	_ domain.ProductAPI = (*ProductsClient)(nil)
	_ domain.StockAPI   = (*Client)(nil)
	_ domain.CourierAPI = (*Client)(nil)
)

// New создаёт клиент с таймаутом по умолчанию.
func New(baseURL string, logger *log.Entry) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: 15 * time.Second}, logger)
}

// NewWithHTTPClient создаёт клиент поверх готового http.Client.
func NewWithHTTPClient(baseURL string, httpClient *http.Client, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.New().WithField("component", "rest-client")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// Orders возвращает фасад операций над коллекцией заказов.
func (c *Client) Orders() *OrdersClient { return &OrdersClient{c: c} }

// Products возвращает фасад операций над каталогом товаров.
func (c *Client) Products() *ProductsClient { return &ProductsClient{c: c} }

type listOrdersResponse struct {
	Orders  []domain.Order `json:"orders"`
	HasMore bool           `json:"hasMore"`
}

type listProductsResponse struct {
	Products []domain.Product `json:"products"`
	HasMore  bool             `json:"hasMore"`
}

type orderEnvelope struct {
	Order domain.Order `json:"order"`
}

type productEnvelope struct {
	Product domain.Product `json:"product"`
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

type stockRequest struct {
	AdjustmentID string                   `json:"adjustmentId"`
	Adjustments  []domain.StockAdjustment `json:"adjustments"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// OrdersClient реализует domain.OrderAPI поверх /api/orders.
type OrdersClient struct {
	c *Client
}

// List возвращает страницу заказов по фильтру и курсору.
func (o *OrdersClient) List(ctx context.Context, q domain.Query) (domain.Page[domain.Order], error) {
	var resp listOrdersResponse
	if err := o.c.do(ctx, http.MethodGet, "/api/orders?"+queryParams(q), nil, &resp, domain.ErrOrderNotFound); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return domain.Page[domain.Order]{Items: resp.Orders, HasMore: resp.HasMore}, nil
}

// Create сохраняет новый заказ.
func (o *OrdersClient) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	var resp orderEnvelope
	if err := o.c.do(ctx, http.MethodPost, "/api/orders", order, &resp, domain.ErrOrderNotFound); err != nil {
		return domain.Order{}, err
	}
	return resp.Order, nil
}

// Update применяет изменения к заказу целиком.
func (o *OrdersClient) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	var resp orderEnvelope
	if err := o.c.do(ctx, http.MethodPut, "/api/orders/"+url.PathEscape(order.ID), order, &resp, domain.ErrOrderNotFound); err != nil {
		return domain.Order{}, err
	}
	return resp.Order, nil
}

// UpdateStatus меняет только статус заказа.
func (o *OrdersClient) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	var resp orderEnvelope
	path := "/api/orders/" + url.PathEscape(id) + "/status"
	if err := o.c.do(ctx, http.MethodPut, path, statusRequest{Status: status}, &resp, domain.ErrOrderNotFound); err != nil {
		return domain.Order{}, err
	}
	return resp.Order, nil
}

// Delete удаляет заказ.
func (o *OrdersClient) Delete(ctx context.Context, id string) error {
	return o.c.do(ctx, http.MethodDelete, "/api/orders/"+url.PathEscape(id), nil, nil, domain.ErrOrderNotFound)
}

// ProductsClient реализует domain.ProductAPI поверх /api/products.
type ProductsClient struct {
	c *Client
}

// List возвращает страницу товаров по фильтру и курсору.
func (p *ProductsClient) List(ctx context.Context, q domain.Query) (domain.Page[domain.Product], error) {
	var resp listProductsResponse
	if err := p.c.do(ctx, http.MethodGet, "/api/products?"+queryParams(q), nil, &resp, domain.ErrProductNotFound); err != nil {
		return domain.Page[domain.Product]{}, err
	}
	return domain.Page[domain.Product]{Items: resp.Products, HasMore: resp.HasMore}, nil
}

// Create сохраняет новый товар.
func (p *ProductsClient) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	var resp productEnvelope
	if err := p.c.do(ctx, http.MethodPost, "/api/products", product, &resp, domain.ErrProductNotFound); err != nil {
		return domain.Product{}, err
	}
	return resp.Product, nil
}

// Update применяет изменения к товару целиком.
func (p *ProductsClient) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	var resp productEnvelope
	if err := p.c.do(ctx, http.MethodPut, "/api/products/"+url.PathEscape(product.ID), product, &resp, domain.ErrProductNotFound); err != nil {
		return domain.Product{}, err
	}
	return resp.Product, nil
}

// Delete удаляет товар.
func (p *ProductsClient) Delete(ctx context.Context, id string) error {
	return p.c.do(ctx, http.MethodDelete, "/api/products/"+url.PathEscape(id), nil, nil, domain.ErrProductNotFound)
}

// Adjust применяет приращения остатков; идемпотентность по adjustmentID
// обеспечивает бэкенд.
func (c *Client) Adjust(ctx context.Context, adjustmentID string, adjustments []domain.StockAdjustment) error {
	body := stockRequest{AdjustmentID: adjustmentID, Adjustments: adjustments}
	return c.do(ctx, http.MethodPost, "/api/update-stock", body, nil, domain.ErrProductNotFound)
}

// Dispatch передаёт заказ в службу доставки.
func (c *Client) Dispatch(ctx context.Context, order domain.Order) error {
	return c.do(ctx, http.MethodPost, "/api/send-to-courier", order, nil, domain.ErrOrderNotFound)
}

// do выполняет запрос и декодирует ответ в out (если out не nil).
// notFound — доменная ошибка, в которую транслируется 404.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, notFound error) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"method": method,
			"path":   path,
		}).Warn("request failed")
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	message := readErrorMessage(resp.Body)
	c.logger.WithFields(log.Fields{
		"method":  method,
		"path":    path,
		"status":  resp.StatusCode,
		"message": message,
	}).Warn("backend returned error")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return notFound
	case resp.StatusCode == http.StatusConflict:
		return domain.ErrVersionConflict
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: backend status %d: %s", domain.ErrTransient, resp.StatusCode, message)
	default:
		return fmt.Errorf("backend rejected request: %s", message)
	}
}

func readErrorMessage(body io.Reader) string {
	var resp errorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil || resp.Message == "" {
		return "unknown error"
	}
	return resp.Message
}

// queryParams кодирует фильтр и курсор в параметры списочного запроса.
func queryParams(q domain.Query) string {
	params := url.Values{}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if !q.DateFrom.IsZero() {
		params.Set("startDate", q.DateFrom.Format(dateParamLayout))
	}
	if !q.DateTo.IsZero() {
		params.Set("endDate", q.DateTo.Format(dateParamLayout))
	}
	if q.After != "" {
		params.Set("after", q.After)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return params.Encode()
}
