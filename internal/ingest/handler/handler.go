// Package handler exposes the ingest pipeline and operator endpoints over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eeia/internal/domain"
	"eeia/internal/ingest"
	"eeia/internal/offlinequeue"
	"eeia/internal/routing/metrics"
	dErrors "eeia/pkg/domain-errors"
	"eeia/pkg/platform/httputil"
	"eeia/pkg/platform/middleware/admin"
	"eeia/pkg/platform/middleware/device"
	"eeia/pkg/platform/middleware/metadata"
	"eeia/pkg/platform/middleware/requesttime"
	"eeia/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/handler_mocks.go -package=mocks Ingestor,AdminService,DomainMetrics

// Ingestor runs the packet pipeline.
type Ingestor interface {
	Process(ctx context.Context, req ingest.Request) (ingest.Result, error)
}

// AdminService applies operator changes.
type AdminService interface {
	UpsertPolicy(ctx context.Context, p domain.Policy) (domain.Policy, error)
	Policies(ctx context.Context) []domain.Policy
	RemovePolicy(ctx context.Context, id string) error
	RegisterKey(ctx context.Context, reg ingest.KeyRegistration) (ingest.RegisteredKey, error)
	RevokeKey(ctx context.Context, deviceID, keyID string) error
	QueueStatus(ctx context.Context) (ingest.QueueStatus, error)
	Drain(ctx context.Context) (offlinequeue.DrainResult, error)
	ClearQueue(ctx context.Context) error
}

// DomainMetrics exposes the routing tally table.
type DomainMetrics interface {
	Snapshot() []metrics.Counts
}

// Handler serves the EEIA HTTP API.
type Handler struct {
	logger     *slog.Logger
	ingest     Ingestor
	admin      AdminService
	domains    DomainMetrics
	metrics    *Metrics
	gatherer   prometheus.Gatherer
	adminToken string
	adminHash  string
}

// Option configures a Handler.
type Option func(*Handler)

// WithAdminToken protects operator routes. hash, when set, is a bcrypt hash
// and wins over token.
func WithAdminToken(token, hash string) Option {
	return func(h *Handler) {
		h.adminToken = token
		h.adminHash = hash
	}
}

// WithGatherer serves /metrics from g.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// WithMetrics records request latency.
func WithMetrics(m *Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// New creates a Handler.
func New(ingestor Ingestor, adminSvc AdminService, domains DomainMetrics, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:   logger,
		ingest:   ingestor,
		admin:    adminSvc,
		domains:  domains,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every route on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(metadata.ClientMetadata)
		r.Use(requesttime.Middleware)
		r.Use(LatencyMiddleware(h.metrics))

		r.With(device.Credentials).Post("/packets/route", h.handleRoutePacket)
		r.Get("/policies", h.handleListPolicies)
		r.Get("/queue", h.handleQueueStatus)
		r.Get("/metrics/domains", h.handleDomainMetrics)

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(h.adminToken, h.adminHash, h.logger))
			r.Post("/policies", h.handleUpsertPolicy)
			r.Delete("/policies/{policy_id}", h.handleRemovePolicy)
			r.Post("/devices/keys", h.handleRegisterKey)
			r.Delete("/devices/{device_id}/keys/{key_id}", h.handleRevokeKey)
			r.Post("/queue/drain", h.handleDrainQueue)
			r.Delete("/queue", h.handleClearQueue)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleRoutePacket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	pkt, err := domain.DecodePacket(http.MaxBytesReader(w, r.Body, maxPacketBodyBytes))
	if err != nil {
		h.logger.WarnContext(ctx, "invalid packet",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	keyID, signature := requestcontext.DeviceCredentials(ctx)
	res, err := h.ingest.Process(ctx, ingest.Request{
		Packet:    pkt,
		KeyID:     keyID,
		Signature: signature,
		TraceID:   requestID,
		ClientIP:  metadata.GetClientIP(ctx),
	})
	if err != nil {
		switch {
		case dErrors.HasCode(err, dErrors.CodeUnauthorized), dErrors.HasCode(err, dErrors.CodeForbidden):
			writeRejection(w, err, res)
		case dErrors.HasCode(err, dErrors.CodeStorage):
			h.logger.ErrorContext(ctx, "packet could not be parked offline",
				"request_id", requestID,
				"packet_id", pkt.ID(),
				"error", err,
			)
			httputil.WriteError(w, err)
		default:
			h.logger.ErrorContext(ctx, "failed to process packet",
				"request_id", requestID,
				"packet_id", pkt.ID(),
				"error", err,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to process packet"))
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRouteResponse(pkt, res))
}

func (h *Handler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := h.admin.Policies(r.Context())
	if policies == nil {
		policies = []domain.Policy{}
	}
	httputil.WriteJSON(w, http.StatusOK, policies)
}

func (h *Handler) handleUpsertPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	p, ok := httputil.DecodeAndPrepare[domain.Policy](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	saved, err := h.admin.UpsertPolicy(ctx, *p)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to upsert policy")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleRemovePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.admin.RemovePolicy(ctx, chi.URLParam(r, "policy_id")); err != nil {
		h.writeServiceError(ctx, w, err, "failed to remove policy")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRegisterKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterKeyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	reg, err := h.admin.RegisterKey(ctx, req.toRegistration())
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to register device key")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toKeyResponse(reg))
}

func (h *Handler) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := chi.URLParam(r, "device_id")
	keyID := chi.URLParam(r, "key_id")
	if err := h.admin.RevokeKey(ctx, deviceID, keyID); err != nil {
		h.writeServiceError(ctx, w, err, "failed to revoke device key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.admin.QueueStatus(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to read queue status")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, QueueStatusResponse{
		Backend:      status.Backend,
		Depth:        status.Depth,
		OpenBreakers: status.OpenBreakers,
	})
}

func (h *Handler) handleDrainQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.admin.Drain(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to drain queue")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.admin.ClearQueue(ctx); err != nil {
		h.writeServiceError(ctx, w, err, "failed to clear queue")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDomainMetrics(w http.ResponseWriter, _ *http.Request) {
	rows := h.domains.Snapshot()
	if rows == nil {
		rows = []metrics.Counts{}
	}
	httputil.WriteJSON(w, http.StatusOK, DomainMetricsResponse{Domains: rows})
}

// writeServiceError passes domain errors through and hides everything else.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, msg))
		return
	}
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
