package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storeplane/storeplane/pkg/lifecycle"
	"github.com/storeplane/storeplane/pkg/quota"
	"github.com/storeplane/storeplane/pkg/storage"
	"github.com/storeplane/storeplane/pkg/types"
)

// defaultTenant is used when no tenant header is present
const defaultTenant = "default"

// handleCreateStore implements POST /stores.
// 202 with the Provisioning store on admission, 200 on idempotent replay,
// 429 on quota or rate denial (rate carries Retry-After).
func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)

	idemKey := r.Header.Get("Idempotency-Key")
	if err := s.validate.Var(idemKey, "omitempty,max=255"); err != nil {
		s.respondError(w, http.StatusBadRequest, "Idempotency-Key must be at most 255 characters")
		return
	}
	if idemKey == "" {
		// No replay protection requested; use a fresh key so the gate
		// path stays uniform
		idemKey = uuid.NewString()
	}

	store, replayed, err := s.engine.CreateStore(r.Context(), tenantID, idemKey)
	if err != nil {
		var denial *quota.Denial
		if errors.As(err, &denial) {
			if denial.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(denial.RetryAfter.Seconds())))
			}
			s.respondJSON(w, http.StatusTooManyRequests, denialBody(denial))
			s.audit(r, tenantID, types.ActionStoreCreate, "", "denied", map[string]any{
				"reason": denial.Reason,
			})
			return
		}
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("create failed")
		s.respondError(w, http.StatusInternalServerError, "failed to create store")
		s.audit(r, tenantID, types.ActionStoreCreate, "", "error", nil)
		return
	}

	status := http.StatusAccepted
	outcome := "accepted"
	if replayed {
		status = http.StatusOK
		outcome = "replayed"
	}
	s.respondJSON(w, status, store)
	s.audit(r, tenantID, types.ActionStoreCreate, store.ID, outcome, map[string]any{
		"host": store.Host,
	})
}

// handleListStores implements GET /stores
func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)

	stores, err := s.engine.ListStores(r.Context(), tenantID)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("list failed")
		s.respondError(w, http.StatusInternalServerError, "failed to list stores")
		return
	}
	if stores == nil {
		stores = []*types.Store{}
	}
	s.respondJSON(w, http.StatusOK, stores)
	s.audit(r, tenantID, types.ActionStoreList, "", "ok", map[string]any{"count": len(stores)})
}

// handleGetStore implements GET /stores/{id}
func (s *Server) handleGetStore(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	id := chi.URLParam(r, "id")

	store, err := s.engine.GetStore(r.Context(), id, tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "store not found")
			return
		}
		s.logger.Error().Err(err).Str("store_id", id).Msg("get failed")
		s.respondError(w, http.StatusInternalServerError, "failed to get store")
		return
	}
	s.respondJSON(w, http.StatusOK, store)
	s.audit(r, tenantID, types.ActionStoreGet, id, "ok", nil)
}

// handleDeleteStore implements DELETE /stores/{id}. Repeated deletes are
// idempotent successes.
func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	id := chi.URLParam(r, "id")

	store, outcome, err := s.engine.DeleteStore(r.Context(), id, tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "store not found")
			return
		}
		s.logger.Error().Err(err).Str("store_id", id).Msg("delete failed")
		s.respondError(w, http.StatusInternalServerError, "failed to delete store")
		s.audit(r, tenantID, types.ActionStoreDelete, id, "error", nil)
		return
	}

	var message string
	switch outcome {
	case lifecycle.AlreadyDeleted:
		message = "store already deleted"
	case lifecycle.DeletionInProgress:
		message = "store deletion in progress"
	default:
		message = "store deletion started"
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"store":   store,
	})
	s.audit(r, tenantID, types.ActionStoreDelete, id, string(outcome), nil)
}

// handleHealth implements GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("database health check failed")
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "connected",
	})
}

func (s *Server) audit(r *http.Request, tenantID, action, resourceID, status string, details map[string]any) {
	s.recorder.Record(&types.AuditEntry{
		TenantID:     tenantID,
		Action:       action,
		ResourceType: "store",
		ResourceID:   resourceID,
		Status:       status,
		Details:      details,
		IPAddress:    r.RemoteAddr,
	})
}

// tenantFrom extracts the tenant identity from request headers. Identity
// is trusted on input; there is no authentication layer.
func tenantFrom(r *http.Request) string {
	if t := r.Header.Get("X-Tenant-Id"); t != "" {
		return t
	}
	if t := r.Header.Get("X-User-Id"); t != "" {
		return t
	}
	return defaultTenant
}

func denialBody(d *quota.Denial) map[string]any {
	body := map[string]any{
		"error":  d.Message,
		"reason": d.Reason,
	}
	if d.RetryAfter > 0 {
		body["retry_after_seconds"] = int(d.RetryAfter.Seconds())
	}
	return body
}
