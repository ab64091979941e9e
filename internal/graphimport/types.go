// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package graphimport

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/meterline/internal/models"
)

// ExtractRow is one data row of the bulk extract.
type ExtractRow struct {
	// Line is the 1-based line number in the extract, header included.
	Line        int
	Reference   string
	Name        string
	ParentChild string
	Attached    string
}

// ImportIntegrityError reports an extract that would give a reference more
// than one parent. It is detected before anything is written.
type ImportIntegrityError struct {
	Reference string
	Parents   []string
}

func (e *ImportIntegrityError) Error() string {
	return fmt.Sprintf("equipment %q has multiple parents in the extract: %s",
		e.Reference, strings.Join(e.Parents, ", "))
}

// AttachmentResult is the outcome of resolving one attached-system pointer:
// either Resolved or SkippedUnresolvedReference.
type AttachmentResult interface {
	attachmentResult()
}

// Resolved is an attachment whose endpoints are both stored.
type Resolved struct {
	Equipment  string
	Attached   string
	Connection models.EquipmentConnection
}

// SkippedUnresolvedReference is an attachment with at least one endpoint
// missing from the store. It is logged and counted, never fatal.
type SkippedUnresolvedReference struct {
	Line      int
	Equipment string
	Attached  string
	Missing   []string
}

func (Resolved) attachmentResult()                   {}
func (SkippedUnresolvedReference) attachmentResult() {}

// ImportStats holds statistics about an import operation.
type ImportStats struct {
	// Rows is the number of extract rows with a reference.
	Rows int `json:"rows"`

	// EquipmentInserted counts references that were new to the store.
	EquipmentInserted int `json:"equipment_inserted"`

	// ParentsSet counts equipment rows whose parent was written.
	ParentsSet int `json:"parents_set"`

	// ParentsCleared counts equipment rows whose stored parent was removed
	// because the extract no longer derives one.
	ParentsCleared int `json:"parents_cleared"`

	// ConnectionsInserted counts attachment pairs that were new to the store.
	ConnectionsInserted int `json:"connections_inserted"`

	// SkippedAttachments counts attachments with an unresolved endpoint.
	SkippedAttachments int `json:"skipped_attachments"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Duration returns the duration of the import operation.
func (s *ImportStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}
