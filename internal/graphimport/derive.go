// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package graphimport

import (
	"sort"

	"github.com/tomtom215/meterline/internal/models"
)

// DeriveParents maps each child reference to its parent. The parent of X is
// the reference of any other row whose parent/child pointer is X. Only
// references that are rows of the extract are considered; pointers to other
// references are ignored. A child claimed by two different parents yields an
// *ImportIntegrityError naming the first such child in sorted order.
func DeriveParents(rows []ExtractRow) (map[string]string, error) {
	present := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		present[r.Reference] = struct{}{}
	}

	candidates := make(map[string][]string)
	for _, r := range rows {
		child := r.ParentChild
		if child == "" || child == r.Reference {
			continue
		}
		if _, ok := present[child]; !ok {
			continue
		}
		if !contains(candidates[child], r.Reference) {
			candidates[child] = append(candidates[child], r.Reference)
		}
	}

	children := make([]string, 0, len(candidates))
	for child := range candidates {
		children = append(children, child)
	}
	sort.Strings(children)

	parents := make(map[string]string, len(candidates))
	for _, child := range children {
		claimed := candidates[child]
		if len(claimed) > 1 {
			sorted := append([]string(nil), claimed...)
			sort.Strings(sorted)
			return nil, &ImportIntegrityError{Reference: child, Parents: sorted}
		}
		parents[child] = claimed[0]
	}
	return parents, nil
}

// ParentLinks returns the parent of every reference in the extract, with an
// empty string for references no row claims. Writing these links clears
// parents that a previous extract set and this one no longer derives.
func ParentLinks(rows []ExtractRow, parents map[string]string) map[string]string {
	links := make(map[string]string, len(rows))
	for _, r := range rows {
		links[r.Reference] = parents[r.Reference]
	}
	return links
}

// DeriveAttachments resolves every attached-system pointer through resolve.
// Rows without a pointer yield nothing; a pointer back to the row itself is
// ignored. Resolved pairs are not deduplicated here; the store ignores pairs
// it already holds.
func DeriveAttachments(rows []ExtractRow, resolve func(ref string) (int64, bool)) []AttachmentResult {
	var results []AttachmentResult
	for _, r := range rows {
		if r.Attached == "" || r.Attached == r.Reference {
			continue
		}

		from, okFrom := resolve(r.Reference)
		to, okTo := resolve(r.Attached)
		if okFrom && okTo {
			results = append(results, Resolved{
				Equipment:  r.Reference,
				Attached:   r.Attached,
				Connection: models.EquipmentConnection{Equipment: from, EquipmentConnection: to},
			})
			continue
		}

		skipped := SkippedUnresolvedReference{Line: r.Line, Equipment: r.Reference, Attached: r.Attached}
		if !okFrom {
			skipped.Missing = append(skipped.Missing, r.Reference)
		}
		if !okTo {
			skipped.Missing = append(skipped.Missing, r.Attached)
		}
		results = append(results, skipped)
	}
	return results
}

// Endpoints returns the distinct references named by attachment rows.
func Endpoints(rows []ExtractRow) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(ref string) {
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	for _, r := range rows {
		if r.Attached == "" || r.Attached == r.Reference {
			continue
		}
		add(r.Reference)
		add(r.Attached)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
