package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobrelay/internal/model"
)

const maxListLimit = 200

type handler struct {
	store  Store
	logger *slog.Logger
}

type opportunityView struct {
	Fingerprint     string         `json:"fingerprint"`
	Text            string         `json:"text"`
	SourceChannel   string         `json:"source_channel"`
	SourceMessageID string         `json:"source_message_id"`
	Score           float64        `json:"score"`
	Contacts        model.Contacts `json:"contacts"`
	CreatedAt       time.Time      `json:"created_at"`
}

type notificationView struct {
	MessageID string    `json:"message_id"`
	Operator  string    `json:"operator"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type deliveryView struct {
	Contact string    `json:"contact"`
	SentAt  time.Time `json:"sent_at"`
}

type opportunityDetail struct {
	opportunityView
	Notifications []notificationView `json:"notifications"`
	Deliveries    []deliveryView     `json:"deliveries"`
}

func newOpportunityView(o model.Opportunity) opportunityView {
	return opportunityView{
		Fingerprint:     o.Fingerprint,
		Text:            o.Text,
		SourceChannel:   o.SourceChannel,
		SourceMessageID: o.SourceMessageID,
		Score:           o.Score,
		Contacts:        o.Contacts,
		CreatedAt:       o.CreatedAt,
	}
}

func (h *handler) health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) stats(c *gin.Context) {
	st, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("loading stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}

	last := make([]deliveryView, 0, len(st.LastDeliveries))
	for _, d := range st.LastDeliveries {
		last = append(last, deliveryView{Contact: d.NormalizedContact, SentAt: d.SentAt})
	}
	c.JSON(http.StatusOK, gin.H{
		"opportunities":     st.Opportunities,
		"deliveries":        st.Deliveries,
		"distinct_contacts": st.DistinctContacts,
		"notifications":     st.Notifications,
		"last_deliveries":   last,
	})
}

func (h *handler) listOpportunities(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	opps, err := h.store.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("listing opportunities failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list opportunities"})
		return
	}

	out := make([]opportunityView, 0, len(opps))
	for _, o := range opps {
		out = append(out, newOpportunityView(o))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) getOpportunity(c *gin.Context) {
	ctx := c.Request.Context()
	fp := c.Param("fingerprint")

	opp, err := h.store.GetByFingerprint(ctx, fp)
	if errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "opportunity not found"})
		return
	}
	if err != nil {
		h.logger.Error("loading opportunity failed", "fingerprint", fp, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load opportunity"})
		return
	}

	notifs, err := h.store.NotificationsFor(ctx, fp)
	if err != nil {
		h.logger.Error("loading notifications failed", "fingerprint", fp, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}
	deliveries, err := h.store.DeliveriesFor(ctx, fp)
	if err != nil {
		h.logger.Error("loading deliveries failed", "fingerprint", fp, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load deliveries"})
		return
	}

	detail := opportunityDetail{
		opportunityView: newOpportunityView(opp),
		Notifications:   make([]notificationView, 0, len(notifs)),
		Deliveries:      make([]deliveryView, 0, len(deliveries)),
	}
	for _, n := range notifs {
		detail.Notifications = append(detail.Notifications, notificationView{
			MessageID: n.NotificationMessageID,
			Operator:  n.TargetOperator,
			Status:    string(n.Status),
			CreatedAt: n.CreatedAt,
		})
	}
	for _, d := range deliveries {
		detail.Deliveries = append(detail.Deliveries, deliveryView{Contact: d.NormalizedContact, SentAt: d.SentAt})
	}
	c.JSON(http.StatusOK, detail)
}
