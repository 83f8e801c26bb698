// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"takeout/internal/service/order/application"
	"takeout/internal/service/order/domain"
)

const (
	serviceName = "order-service"
	// HeaderActorID 由网关在鉴权后写入的身份
	HeaderActorID = "X-Actor-Id"
	// HeaderRequestID 缺失时由本服务生成并回写
	HeaderRequestID = "X-Request-Id"
)

// OrderService 是 HTTP 层依赖的应用服务
type OrderService interface {
	Submit(ctx context.Context, actor domain.Actor, req application.SubmitOrderRequest) (*application.SubmitOrderResponse, error)
	Pay(ctx context.Context, actor domain.Actor, orderNumber string) (*application.OrderView, error)
	Confirm(ctx context.Context, actor domain.Actor, id int64) (*application.OrderView, error)
	Reject(ctx context.Context, actor domain.Actor, id int64, reason string) (*application.OrderView, error)
	CancelByUser(ctx context.Context, actor domain.Actor, id int64) (*application.OrderView, error)
	CancelByMerchant(ctx context.Context, actor domain.Actor, id int64, reason string) (*application.OrderView, error)
	Deliver(ctx context.Context, actor domain.Actor, id int64) (*application.OrderView, error)
	Complete(ctx context.Context, actor domain.Actor, id int64) (*application.OrderView, error)
	Reminder(ctx context.Context, actor domain.Actor, id int64) error
	Get(ctx context.Context, actor domain.Actor, id int64) (*application.OrderView, error)
	Search(ctx context.Context, q domain.SearchQuery) (*application.PageResult, error)
	Statistics(ctx context.Context) (*application.Statistics, error)
}

// OrderHandler 封装了订单服务的 HTTP 处理器
type OrderHandler struct {
	service  OrderService
	gatherer prometheus.Gatherer
	tracer   trace.Tracer
}

// NewOrderHandler 创建一个新的 HTTP 处理器实例
func NewOrderHandler(service OrderService, gatherer prometheus.Gatherer) *OrderHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &OrderHandler{service: service, gatherer: gatherer, tracer: otel.Tracer(serviceName)}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// 用户端
	mux.HandleFunc("POST /user/order/submit", h.user(h.submit))
	mux.HandleFunc("PUT /user/order/payment", h.user(h.payment))
	mux.HandleFunc("GET /user/order/orderDetail/{id}", h.user(h.detail))
	mux.HandleFunc("PUT /user/order/cancel/{id}", h.user(h.cancelByUser))
	mux.HandleFunc("GET /user/order/reminder/{id}", h.user(h.reminder))
	mux.HandleFunc("GET /user/order/historyOrders", h.user(h.historyOrders))

	// 商家端
	mux.HandleFunc("GET /admin/order/conditionSearch", h.admin(h.conditionSearch))
	mux.HandleFunc("GET /admin/order/statistics", h.admin(h.statistics))
	mux.HandleFunc("GET /admin/order/details/{id}", h.admin(h.detail))
	mux.HandleFunc("PUT /admin/order/confirm", h.admin(h.confirm))
	mux.HandleFunc("PUT /admin/order/rejection", h.admin(h.reject))
	mux.HandleFunc("PUT /admin/order/cancel", h.admin(h.cancelByMerchant))
	mux.HandleFunc("PUT /admin/order/delivery/{id}", h.admin(h.deliver))
	mux.HandleFunc("PUT /admin/order/complete/{id}", h.admin(h.complete))
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor domain.Actor)

func (h *OrderHandler) user(next actorHandler) http.HandlerFunc {
	return h.traced(domain.UserActor, next)
}

func (h *OrderHandler) admin(next actorHandler) http.HandlerFunc {
	return h.traced(domain.MerchantActor, next)
}

// traced 提取上游的追踪上下文、解析身份，然后调用具体的处理函数
func (h *OrderHandler) traced(makeActor func(int64) domain.Actor, next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := h.tracer.Start(ctx, r.Pattern, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		span.SetAttributes(attribute.String("http.request_id", requestID))

		id, err := strconv.ParseInt(r.Header.Get(HeaderActorID), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusUnauthorized, Result{Code: 0, Msg: "missing or invalid " + HeaderActorID})
			return
		}
		actor := makeActor(id)
		span.SetAttributes(attribute.Int64("actor.id", actor.ID), attribute.String("actor.kind", string(actor.Kind)))
		next(w, r.WithContext(ctx), actor)
	}
}

func (h *OrderHandler) submit(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req application.SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		failure(w, r, errors.Wrap(domain.ErrInvalidArgument, "invalid request body"))
		return
	}
	resp, err := h.service.Submit(r.Context(), actor, req)
	if err != nil {
		failure(w, r, err)
		return
	}
	success(w, resp)
}

func (h *OrderHandler) payment(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req struct {
		OrderNumber string `json:"orderNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderNumber == "" {
		failure(w, r, errors.Wrap(domain.ErrInvalidArgument, "orderNumber is required"))
		return
	}
	view, err := h.service.Pay(r.Context(), actor, req.OrderNumber)
	if err != nil {
		failure(w, r, err)
		return
	}
	success(w, view)
}

func (h *OrderHandler) detail(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	h.withPathID(w, r, func(id int64) (interface{}, error) {
		return h.service.Get(r.Context(), actor, id)
	})
}

func (h *OrderHandler) cancelByUser(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	h.withPathID(w, r, func(id int64) (interface{}, error) {
		return h.service.CancelByUser(r.Context(), actor, id)
	})
}

func (h *OrderHandler) reminder(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	h.withPathID(w, r, func(id int64) (interface{}, error) {
		return nil, h.service.Reminder(r.Context(), actor, id)
	})
}

func (h *OrderHandler) deliver(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	h.withPathID(w, r, func(id int64) (interface{}, error) {
		return h.service.Deliver(r.Context(), actor, id)
	})
}

func (h *OrderHandler) complete(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	h.withPathID(w, r, func(id int64) (interface{}, error) {
		return h.service.Complete(r.Context(), actor, id)
	})
}

type merchantActionRequest struct {
	ID              int64  `json:"id"`
	RejectionReason string `json:"rejectionReason"`
	CancelReason    string `json:"cancelReason"`
}

func (h *OrderHandler) confirm(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	h.withBody(w, r, func(req merchantActionRequest) (interface{}, error) {
		return h.service.Confirm(r.Context(), actor, req.ID)
	})
}

func (h *OrderHandler) reject(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	h.withBody(w, r, func(req merchantActionRequest) (interface{}, error) {
		return h.service.Reject(r.Context(), actor, req.ID, req.RejectionReason)
	})
}

func (h *OrderHandler) cancelByMerchant(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	h.withBody(w, r, func(req merchantActionRequest) (interface{}, error) {
		return h.service.CancelByMerchant(r.Context(), actor, req.ID, req.CancelReason)
	})
}

func (h *OrderHandler) conditionSearch(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	q, err := parseSearchQuery(r)
	if err != nil {
		failure(w, r, err)
		return
	}
	page, err := h.service.Search(r.Context(), q)
	if err != nil {
		failure(w, r, err)
		return
	}
	success(w, page)
}

// historyOrders 用户查询自己的历史订单，userId 只取自身份头
func (h *OrderHandler) historyOrders(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	parsed, err := parseSearchQuery(r)
	if err != nil {
		failure(w, r, err)
		return
	}
	q := domain.SearchQuery{
		UserID:   actor.ID,
		Status:   parsed.Status,
		Page:     parsed.Page,
		PageSize: parsed.PageSize,
	}
	page, err := h.service.Search(r.Context(), q)
	if err != nil {
		failure(w, r, err)
		return
	}
	success(w, page)
}

func (h *OrderHandler) statistics(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		failure(w, r, err)
		return
	}
	success(w, stats)
}

func (h *OrderHandler) withPathID(w http.ResponseWriter, r *http.Request, call func(id int64) (interface{}, error)) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		failure(w, r, errors.Wrap(domain.ErrInvalidArgument, "invalid order id"))
		return
	}
	data, err := call(id)
	if err != nil {
		failure(w, r, err)
		return
	}
	success(w, data)
}

func (h *OrderHandler) withBody(w http.ResponseWriter, r *http.Request, call func(req merchantActionRequest) (interface{}, error)) {
	var req merchantActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID <= 0 {
		failure(w, r, errors.Wrap(domain.ErrInvalidArgument, "invalid request body"))
		return
	}
	data, err := call(req)
	if err != nil {
		failure(w, r, err)
		return
	}
	success(w, data)
}

const queryTimeLayout = "2006-01-02 15:04:05"

func parseSearchQuery(r *http.Request) (domain.SearchQuery, error) {
	v := r.URL.Query()
	q := domain.SearchQuery{Number: v.Get("number")}
	var err error
	if q.Page, err = atoiDefault(v.Get("page"), 1); err != nil {
		return q, err
	}
	if q.PageSize, err = atoiDefault(v.Get("pageSize"), 10); err != nil {
		return q, err
	}
	status, err := atoiDefault(v.Get("status"), 0)
	if err != nil {
		return q, err
	}
	q.Status = domain.Status(status)
	if q.Status != 0 && !q.Status.Valid() {
		return q, errors.Wrapf(domain.ErrInvalidArgument, "unknown status %d", status)
	}
	if raw := v.Get("userId"); raw != "" {
		if q.UserID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return q, errors.Wrap(domain.ErrInvalidArgument, "invalid userId")
		}
	}
	for key, dst := range map[string]**time.Time{"beginTime": &q.Begin, "endTime": &q.End} {
		raw := v.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.ParseInLocation(queryTimeLayout, raw, time.Local)
		if err != nil {
			return q, errors.Wrapf(domain.ErrInvalidArgument, "invalid %s", key)
		}
		*dst = &t
	}
	return q, nil
}

func atoiDefault(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrInvalidArgument, "invalid number %q", raw)
	}
	return n, nil
}
