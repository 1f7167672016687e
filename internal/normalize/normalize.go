// Package normalize turns raw bilingual spreadsheet rows into canonical
// records. It is pure: no I/O, safe for concurrent and repeated calls.
package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/propertydigital/pdimport/pkg/core"
)

var (
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRe = regexp.MustCompile(`^[\d\s\-+()]{9,}$`)
	dmyRe   = regexp.MustCompile(`^\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}$`)
)

// Normalize maps one raw row onto the canonical schema for the entity type.
// headers gives the source column order for deterministic matching; pass nil
// to fall back to sorted keys (server-side re-normalization of JSON maps).
// rowIndex is the 1-indexed row in the source file, used in field errors.
// The record is always returned, even when required fields are missing, so
// the caller decides whether to reject it.
func Normalize(raw core.RawRecord, headers []string, rowIndex int, entity core.EntityType) (core.Record, []core.FieldError) {
	cfg := ConfigFor(entity)
	if cfg == nil {
		return nil, []core.FieldError{fieldError(rowIndex, "", fmt.Sprintf("unsupported entity type %q", entity), core.SeverityError)}
	}

	if headers == nil {
		headers = make([]string, 0, len(raw))
		for k := range raw {
			headers = append(headers, k)
		}
		sort.Strings(headers)
	}

	record := core.Record{}
	var errs []core.FieldError
	mapped := make(map[string]bool, len(headers)) // headers consumed by an alias

	// Alias pass: canonical fields in table order, aliases in declared order,
	// source headers in file order.
	for _, spec := range cfg.Fields {
		header, ok := matchAlias(spec, headers)
		if !ok {
			continue
		}
		mapped[header] = true
		coerce(record, &errs, spec, raw[header], rowIndex)
	}

	// Content sniffing on leftover columns. All-numeric values are never
	// auto-mapped: too easy to collide with ids and amounts.
	for _, header := range headers {
		if mapped[header] {
			continue
		}
		value := strings.TrimSpace(raw[header])
		if value == "" {
			continue
		}
		switch {
		case record["email"] == nil && emailRe.MatchString(value):
			record["email"] = value
		case record["phone"] == nil && phoneRe.MatchString(value) && !allDigitsOnly(value):
			record["phone"] = value
		case cfg.DateField != "" && record[cfg.DateField] == nil && dmyRe.MatchString(value):
			if iso, ok := CoerceDate(value); ok {
				record[cfg.DateField] = iso
			}
		}
	}

	// Enum defaults apply even when the column is absent entirely.
	for _, spec := range cfg.Fields {
		if spec.Kind == KindEnum && record[spec.Canonical] == nil && spec.Default != "" {
			record[spec.Canonical] = spec.Default
		}
	}

	// A field that already failed coercion carries its own error entry;
	// reporting it missing on top would double-count the record.
	for _, required := range cfg.Required {
		if isBlank(record[required]) && !hasErrorFor(errs, required) {
			errs = append(errs, fieldError(rowIndex, required, fmt.Sprintf("missing required field %s", required), core.SeverityError))
		}
	}

	return record, errs
}

// coerce applies the field's kind to the raw value and stores the result.
func coerce(record core.Record, errs *[]core.FieldError, spec FieldSpec, value string, rowIndex int) {
	trimmed := strings.TrimSpace(value)

	switch spec.Kind {
	case KindDate:
		if trimmed == "" {
			return
		}
		iso, ok := CoerceDate(trimmed)
		// Malformed dates pass through unchanged to avoid silent data loss.
		record[spec.Canonical] = iso
		if !ok {
			*errs = append(*errs, fieldError(rowIndex, spec.Canonical, fmt.Sprintf("unrecognized date format %q", trimmed), core.SeverityWarning))
		}
	case KindAmount:
		if trimmed == "" {
			return
		}
		num, ok := CoerceAmount(trimmed)
		if !ok {
			record[spec.Canonical] = nil
			*errs = append(*errs, fieldError(rowIndex, spec.Canonical, fmt.Sprintf("unparsable amount %q", trimmed), core.SeverityError))
			return
		}
		record[spec.Canonical] = num
	case KindInteger:
		num, _ := CoerceInteger(trimmed)
		record[spec.Canonical] = num
	case KindEnum:
		record[spec.Canonical] = Translate(trimmed, spec.Translations, spec.Default)
	default:
		if trimmed != "" {
			record[spec.Canonical] = trimmed
		}
	}
}

// matchAlias finds the first source header matching one of the field's aliases.
func matchAlias(spec FieldSpec, headers []string) (string, bool) {
	for _, alias := range spec.Aliases {
		for _, header := range headers {
			if strings.EqualFold(strings.TrimSpace(header), alias) {
				return header, true
			}
		}
	}
	return "", false
}

func fieldError(row int, column, message string, severity core.Severity) core.FieldError {
	return core.FieldError{
		ID:       uuid.New().String(),
		Row:      row,
		Column:   column,
		Message:  message,
		Severity: severity,
	}
}

func hasErrorFor(errs []core.FieldError, column string) bool {
	for _, fe := range errs {
		if fe.Column == column && fe.Severity == core.SeverityError {
			return true
		}
	}
	return false
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}

func allDigitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
