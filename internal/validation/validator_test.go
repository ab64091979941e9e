// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dataRequest struct {
	Reference string     `validate:"equipment_ref"`
	Period    string     `validate:"omitempty,period"`
	Weeks     int        `validate:"gte=0,lte=520"`
	From      *time.Time `validate:"omitempty"`
	To        *time.Time `validate:"omitempty,gtfield=From"`
}

func TestGetValidator_Singleton(t *testing.T) {
	assert.Same(t, GetValidator(), GetValidator())
}

func TestValidateStruct(t *testing.T) {
	from := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	before := from.Add(-time.Hour)
	after := from.Add(time.Hour)

	tests := []struct {
		name    string
		req     dataRequest
		wantTag string
	}{
		{name: "minimal", req: dataRequest{Reference: "EQ-1"}},
		{name: "full", req: dataRequest{Reference: "AHU 01/Supply", Period: "15min", Weeks: 4, From: &from, To: &after}},
		{name: "go duration period", req: dataRequest{Reference: "EQ-1", Period: "90s"}},
		{name: "empty reference", req: dataRequest{}, wantTag: "equipment_ref"},
		{name: "padded reference", req: dataRequest{Reference: " EQ-1"}, wantTag: "equipment_ref"},
		{name: "control character", req: dataRequest{Reference: "EQ\n1"}, wantTag: "equipment_ref"},
		{name: "too long", req: dataRequest{Reference: strings.Repeat("x", 129)}, wantTag: "equipment_ref"},
		{name: "bad period", req: dataRequest{Reference: "EQ-1", Period: "fortnight"}, wantTag: "period"},
		{name: "negative weeks", req: dataRequest{Reference: "EQ-1", Weeks: -1}, wantTag: "gte"},
		{name: "inverted window", req: dataRequest{Reference: "EQ-1", From: &from, To: &before}, wantTag: "gtfield"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.req)
			if tt.wantTag == "" {
				assert.Nil(t, verr)
				return
			}
			require.NotNil(t, verr)
			require.Len(t, verr.Errors(), 1)
			assert.Equal(t, tt.wantTag, verr.Errors()[0].Tag())
		})
	}
}

func TestToAPIError_SingleError(t *testing.T) {
	verr := ValidateStruct(&dataRequest{Reference: "EQ-1", Period: "bogus"})
	require.NotNil(t, verr)

	apiErr := verr.ToAPIError()
	assert.Equal(t, ErrorCode, apiErr.Code)
	assert.Equal(t, "Period must be a resample period such as 15min, 1h or 1d", apiErr.Message)
	assert.Equal(t, "Period", apiErr.Details["field"])
	assert.Equal(t, "bogus", apiErr.Details["value"])
}

func TestToAPIError_MultipleErrors(t *testing.T) {
	verr := ValidateStruct(&dataRequest{Period: "bogus", Weeks: 1000})
	require.NotNil(t, verr)
	require.Len(t, verr.Errors(), 3)

	apiErr := verr.ToAPIError()
	assert.Equal(t, ErrorCode, apiErr.Code)
	assert.Contains(t, apiErr.Message, "Reference: ")
	assert.Contains(t, apiErr.Message, "Weeks: Weeks must be less than or equal to 520")
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	require.True(t, ok)
	assert.Len(t, fields, 3)
	assert.Equal(t, verr.Error(), strings.Join([]string{
		verr.Errors()[0].Error(), verr.Errors()[1].Error(), verr.Errors()[2].Error(),
	}, "; "))
}

func TestToAPIError_Empty(t *testing.T) {
	apiErr := (&RequestValidationError{}).ToAPIError()
	assert.Equal(t, "Validation failed", apiErr.Message)
	assert.Equal(t, "validation failed", (&RequestValidationError{}).Error())
}

func TestTranslateMinMax(t *testing.T) {
	type bounds struct {
		Name  string `validate:"min=2,max=4"`
		Count int    `validate:"min=1"`
	}

	verr := ValidateStruct(&bounds{Name: "x", Count: 0})
	require.NotNil(t, verr)
	msgs := make([]string, 0, 2)
	for _, e := range verr.Errors() {
		msgs = append(msgs, e.Error())
	}
	assert.Equal(t, []string{"Name must be at least 2 characters", "Count must be at least 1"}, msgs)
}
