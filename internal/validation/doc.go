// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
Package validation validates read API requests with go-playground/validator.

A single validator instance is shared by every handler; it caches struct
metadata and carries two custom tags:

  - equipment_ref: a printable equipment reference without surrounding
    whitespace, at most 128 bytes
  - period: a resample period accepted by timeseries.ParsePeriod

Failures are translated to the VALIDATION_ERROR shape of the read API:

	type graphRequest struct {
	    Reference string `validate:"equipment_ref"`
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
	    apiErr := verr.ToAPIError()
	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
	    return
	}
*/
package validation
