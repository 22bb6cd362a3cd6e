package routes

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/models"
	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/pkg/metrics"
)

// NotificationInserter persists a notification and fills in its id.
type NotificationInserter interface {
	Insert(ctx context.Context, n *models.Notification) error
}

// Enqueuer schedules a fan-out job for a persisted notification.
type Enqueuer interface {
	Enqueue(ctx context.Context, hackathonID string, n *models.Notification) (string, error)
}

type notifyRequest struct {
	Message string `json:"message" binding:"required"`
	Type    string `json:"type"`
}

// NewRouter wires the ingestion endpoint, the WebSocket gateway and the
// health/metrics endpoints for the API process.
func NewRouter(store NotificationInserter, queues Enqueuer, wsHandler http.HandlerFunc, logger *slog.Logger, started time.Time) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/notify/:hackathonId", func(c *gin.Context) {
		hackathonID := c.Param("hackathonId")

		var req notifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		if req.Type == "" {
			req.Type = "deadline"
		}

		n := &models.Notification{
			HackathonID: hackathonID,
			Message:     req.Message,
			Type:        req.Type,
		}
		// Persist first: an ingestion that cannot be stored must fail the
		// request outright, with nothing enqueued.
		if err := store.Insert(c.Request.Context(), n); err != nil {
			logger.Error("failed to persist notification",
				slog.String("hackathon_id", hackathonID),
				slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to store notification"})
			return
		}

		if _, err := queues.Enqueue(c.Request.Context(), hackathonID, n); err != nil {
			logger.Error("failed to enqueue notification",
				slog.String("hackathon_id", hackathonID),
				slog.Uint64("notification_id", uint64(n.ID)),
				slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to enqueue notification"})
			return
		}

		metrics.NotificationsIngestedTotal.WithLabelValues(hackathonID, req.Type).Inc()
		c.JSON(http.StatusOK, gin.H{"success": true, "notificationId": n.ID})
	})

	r.GET("/ws", gin.WrapF(wsHandler))
	r.GET("/health", healthHandler("notification engine healthy", started))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func healthHandler(message string, started time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": message,
			"meta": gin.H{
				"uptime_seconds": int(time.Since(started).Seconds()),
				"timestamp":      time.Now().UTC(),
			},
		})
	}
}

// NewWorkerRouter exposes health and metrics for the fan-out worker, which
// serves no client traffic.
func NewWorkerRouter(started time.Time) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"message": "fan-out worker healthy",
			"meta": map[string]interface{}{
				"uptime_seconds": int(time.Since(started).Seconds()),
				"timestamp":      time.Now().UTC(),
			},
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
