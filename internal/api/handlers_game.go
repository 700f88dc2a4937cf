// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/highscore/internal/logging"
	"github.com/tomtom215/highscore/internal/models"
	"github.com/tomtom215/highscore/internal/scores"
	"github.com/tomtom215/highscore/internal/validation"
)

// maxSubmitBody bounds the submit request body.
const maxSubmitBody = 1 << 10

// SubmitRequest is the body of POST /api/game/submit.
type SubmitRequest struct {
	DeviceID string `json:"deviceId" validate:"required,deviceid"`
	// pointer so a missing score differs from a score of 0
	Score *int64 `json:"score" validate:"required,gte=0"`
}

// RankingResponse is the data of GET /api/game/ranking.
type RankingResponse struct {
	Rankings []models.RankingItem `json:"rankings"`
	Total    int                  `json:"total"`
	Type     models.TimeRange     `json:"type"`
}

// SubmitScore handles POST /api/game/submit.
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody)).Decode(&req); err != nil {
		rw.BadRequest(ErrCodeValidation, "Request body must be JSON with deviceId and an integer score")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	if !h.checkDeviceLimit(w, r, req.DeviceID, h.config.RateLimit.DeviceLimit) {
		return
	}

	result, err := h.svc.Submit(r.Context(), req.DeviceID, *req.Score)
	if err != nil {
		respondServiceError(rw, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("device_id", result.DeviceID).
		Int64("score", result.Score).
		Int64("best_score", result.BestScore).
		Bool("new_best", result.IsNewBest).
		Msg("Score submitted")
	rw.Success(result)
}

// Ranking handles GET /api/game/ranking?type=all|weekly&limit=N.
func (h *Handler) Ranking(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()

	tr := models.TimeRangeAll
	if t := q.Get("type"); t != "" {
		tr = models.TimeRange(t)
	}
	if !tr.Valid() {
		rw.BadRequest(ErrCodeInvalidRankType, "type must be all or weekly")
		return
	}

	maxLimit := h.config.Ranking.MaxLimit
	limit := h.config.Ranking.APILimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxLimit {
			rw.BadRequest(ErrCodeInvalidLimit, "limit must be between 1 and "+strconv.Itoa(maxLimit))
			return
		}
		limit = n
	}

	items, err := h.svc.GetRanking(r.Context(), tr, limit)
	if err != nil {
		respondServiceError(rw, r, err)
		return
	}
	if items == nil {
		items = []models.RankingItem{}
	}
	rw.Success(RankingResponse{Rankings: items, Total: len(items), Type: tr})
}

// DeviceStats handles GET /api/game/stats/{deviceId}.
func (h *Handler) DeviceStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	deviceID := chi.URLParam(r, "deviceId")
	if err := scores.ValidateDeviceID(deviceID); err != nil {
		respondServiceError(rw, r, err)
		return
	}
	if !h.checkDeviceLimit(w, r, deviceID, h.config.RateLimit.StatsLimit) {
		return
	}

	stats, err := h.svc.GetStatsWithRank(r.Context(), deviceID)
	if err != nil {
		respondServiceError(rw, r, err)
		return
	}
	rw.Success(stats)
}

// History handles GET /api/game/history/{deviceId}?limit=N&offset=M.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	deviceID := chi.URLParam(r, "deviceId")
	if err := scores.ValidateDeviceID(deviceID); err != nil {
		respondServiceError(rw, r, err)
		return
	}

	q := r.URL.Query()
	limit := scores.DefaultHistoryLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > scores.MaxHistoryLimit {
			rw.BadRequest(ErrCodeInvalidLimit, "limit must be between 1 and "+strconv.Itoa(scores.MaxHistoryLimit))
			return
		}
		limit = n
	}
	offset := 0
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			rw.BadRequest(ErrCodeInvalidOffset, "offset must be 0 or greater")
			return
		}
		offset = n
	}

	page, err := h.svc.GetHistory(r.Context(), deviceID, limit, offset)
	if err != nil {
		respondServiceError(rw, r, err)
		return
	}
	rw.Success(page)
}
