// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/highscore/internal/logging"
	"github.com/tomtom215/highscore/internal/scores"
)

// validationCodes maps ledger field names to error codes.
var validationCodes = map[string]string{
	"deviceId": ErrCodeInvalidDeviceID,
	"limit":    ErrCodeInvalidLimit,
	"offset":   ErrCodeInvalidOffset,
	"type":     ErrCodeInvalidRankType,
}

// respondServiceError maps a scores error to its HTTP response:
// *ValidationError is 400, ErrNotFound 404, *StorageError 500 DATABASE_ERROR.
func respondServiceError(rw *ResponseWriter, r *http.Request, err error) {
	var ve *scores.ValidationError
	var se *scores.StorageError
	switch {
	case errors.As(err, &ve):
		code, ok := validationCodes[ve.Field]
		if !ok {
			code = ErrCodeValidation
		}
		rw.ErrorWithDetails(http.StatusBadRequest, code, ve.Error(), map[string]interface{}{"field": ve.Field})
	case errors.Is(err, scores.ErrNotFound):
		rw.NotFound(ErrCodeDeviceNotFound, "Device has no recorded score")
	case errors.As(err, &se):
		rw.DatabaseError(err)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Unexpected service error")
		rw.InternalError("An internal error occurred")
	}
}
