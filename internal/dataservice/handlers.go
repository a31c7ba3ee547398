package dataservice

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type handler struct {
	svc *Service
}

// Record is an opaque lab document stored by the data service
type Record struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}

type createRecordRequest struct {
	Kind    string          `json:"kind" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": Version,
	})
}

func (h *handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"instance_id":        h.svc.instanceID,
		"storage":            h.svc.opts.StorageLocator,
		"migrations_applied": h.svc.opts.ApplyMigrations,
		"schema_version":     schemaVersion(h.svc.db),
		"uptime_seconds":     int64(time.Since(h.svc.started).Seconds()),
	})
}

func (h *handler) listRecords(c *gin.Context) {
	query := "SELECT id, kind, payload, created_at FROM lab_records"
	args := []interface{}{}
	if kind := c.Query("kind"); kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY created_at, id"

	rows, err := h.svc.db.QueryContext(c.Request.Context(), query, args...)
	if err != nil {
		h.storageError(c, err)
		return
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		var payload string
		if err := rows.Scan(&r.ID, &r.Kind, &payload, &r.CreatedAt); err != nil {
			h.storageError(c, err)
			return
		}
		r.Payload = json.RawMessage(payload)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		h.storageError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *handler) createRecord(c *gin.Context) {
	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r := Record{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		Payload:   req.Payload,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	_, err := h.svc.db.ExecContext(c.Request.Context(),
		"INSERT INTO lab_records (id, kind, payload, created_at) VALUES (?, ?, ?, ?)",
		r.ID, r.Kind, string(r.Payload), r.CreatedAt)
	if err != nil {
		h.storageError(c, err)
		return
	}

	c.JSON(http.StatusCreated, r)
}

func (h *handler) getRecord(c *gin.Context) {
	var r Record
	var payload string
	err := h.svc.db.QueryRowContext(c.Request.Context(),
		"SELECT id, kind, payload, created_at FROM lab_records WHERE id = ?", c.Param("id")).
		Scan(&r.ID, &r.Kind, &payload, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	if err != nil {
		h.storageError(c, err)
		return
	}
	r.Payload = json.RawMessage(payload)
	c.JSON(http.StatusOK, r)
}

func (h *handler) storageError(c *gin.Context, err error) {
	h.svc.logger.Error("storage error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
}
