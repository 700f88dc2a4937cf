// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

// Package validation wraps go-playground/validator v10 with a shared
// validator instance, the "deviceid" rule and API error translation.
//
// Request structs declare their rules in tags:
//
//	type submitRequest struct {
//	    DeviceID string `json:"deviceId" validate:"required,deviceid"`
//	    Score    *int64 `json:"score" validate:"required,min=0,max=999999"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	    return
//	}
//
// Field names in messages are the JSON names. A single failed "deviceid"
// rule maps to INVALID_DEVICE_ID; everything else maps to VALIDATION_ERROR.
//
// GetValidator initializes once and is safe for concurrent use.
package validation
