package domain

import "time"

// ============================================================
// Health, export & metrics API responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LastChecked string `json:"lastChecked"`
}

// ExportVersion tags the layout of an ExportSnapshot.
const ExportVersion = "1.0"

// ExportSnapshot is the composite backup produced by the gateway.
type ExportSnapshot struct {
	Customers  []Customer `json:"customers"`
	Templates  []Template `json:"templates"`
	Payments   []Payment  `json:"payments"`
	Settings   Settings   `json:"settings"`
	ExportedAt time.Time  `json:"exportedAt"`
	Version    string     `json:"version"`
}

// BackupFilename names the download of an export taken at t.
func BackupFilename(t time.Time) string {
	return "payping-backup-" + t.UTC().Format("2006-01-02") + ".json"
}

// SyncMetrics is returned by GET /v1/metrics/sync.
type SyncMetrics struct {
	ActionsDispatched float64 `json:"actionsDispatched"`
	PushesDelivered   float64 `json:"pushesDelivered"`
	StaleDropped      float64 `json:"staleDropped"`
	ExternalErrors    float64 `json:"externalErrors"`
	CacheHitRate      float64 `json:"cacheHitRate"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
