// Package template holds the structured-text template catalog used to turn
// raw command output into records. Templates are immutable for the process
// lifetime; the store lends them out for scoring.
package template

import (
	"errors"
	"regexp"
	"sort"
	"strings"
)

// Record is one extracted record: field name to value. Absent fields are
// simply missing from the map.
type Record map[string]string

// Template is a parse definition for one command on one platform. Fields
// are extracted by named regexes; ListFields are collected across every
// match and comma-joined, which is how stacked chassis report multiple
// serials and models through a single field.
type Template struct {
	// ID is unique across the catalog and is the deterministic tie-breaker
	// during scoring.
	ID string
	// Vendor is the vendor/platform tag, e.g. "cisco_ios".
	Vendor string
	// Filter is the normalized command prefix this template applies to.
	Filter string
	// Required names the field whose presence marks a structurally good
	// parse (e.g. "hostname" for version templates).
	Required string
	// RecordSep, when set, splits the text into per-record chunks before
	// field extraction. Nil treats the whole text as one record.
	RecordSep *regexp.Regexp
	// Fields maps field name to an extraction regex with one capture group.
	Fields map[string]*regexp.Regexp
	// ListFields are extracted with all matches joined by ", ".
	ListFields map[string]*regexp.Regexp
}

// ErrNoRecords is the structural-failure result: the template produced
// nothing from the text.
var ErrNoRecords = errors.New("template: no records extracted")

// Parse runs the template against sanitized command output.
func (t *Template) Parse(text string) ([]Record, error) {
	chunks := []string{text}
	if t.RecordSep != nil {
		chunks = t.RecordSep.Split(text, -1)
	}

	var records []Record
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		rec := Record{}
		for name, re := range t.Fields {
			if m := re.FindStringSubmatch(chunk); m != nil {
				val := strings.TrimSpace(m[1])
				if val != "" {
					rec[name] = val
				}
			}
		}
		for name, re := range t.ListFields {
			var vals []string
			for _, m := range re.FindAllStringSubmatch(chunk, -1) {
				if v := strings.TrimSpace(m[1]); v != "" {
					vals = append(vals, v)
				}
			}
			if len(vals) > 0 {
				rec[name] = strings.Join(vals, ", ")
			}
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}

	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

// FieldCount counts non-empty fields across all records.
func FieldCount(records []Record) int {
	n := 0
	for _, r := range records {
		for _, v := range r {
			if v != "" {
				n++
			}
		}
	}
	return n
}

// NormalizeCommand lowercases a command and collapses internal whitespace,
// producing the form matched against template filters.
func NormalizeCommand(cmd string) string {
	return strings.Join(strings.Fields(strings.ToLower(cmd)), " ")
}

// SortByID orders templates deterministically.
func SortByID(tmpls []*Template) {
	sort.Slice(tmpls, func(i, j int) bool { return tmpls[i].ID < tmpls[j].ID })
}
