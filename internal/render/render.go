// Package render formats records and change sets for terminal output.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"

	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

// Changes writes one line per changed field of cs. Text fields show an
// inline word diff ("[-old-]{+new+}"); other fields show "old -> new".
func Changes(w io.Writer, schema attribute.Schema, original attribute.Bag, cs domain.ChangeSet) error {
	if cs.IsEmpty() {
		_, err := fmt.Fprintln(w, "no changes")
		return err
	}
	if id := cs.RecordID(); id != "" {
		if _, err := fmt.Fprintf(w, "record %s (%s)\n", id, schema.Category); err != nil {
			return err
		}
	}
	for _, key := range cs.ChangedFields.Keys() {
		after, _ := cs.ChangedFields.Get(key)
		before, had := original.Get(key)
		var line string
		field, declared := schema.Field(key)
		switch {
		case !had:
			line = "+ " + formatValue(after)
		case declared && field.Type == attribute.TypeText:
			line = WordDiff(stringOf(before), stringOf(after))
		default:
			line = formatValue(before) + " -> " + formatValue(after)
		}
		if _, err := fmt.Fprintf(w, "  %s: %s\n", key, line); err != nil {
			return err
		}
	}
	return nil
}

// WordDiff returns a word level diff of two strings.
func WordDiff(before, after string) string {
	if before == after {
		return before
	}
	dmp := diffmatchpatch.New()
	a, b, tokens := dmp.DiffLinesToRunes(joinTokens(before), joinTokens(after))
	diffs := dmp.DiffMainRunes(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, tokens)

	var sb strings.Builder
	for _, d := range diffs {
		text := strings.ReplaceAll(d.Text, "\n", "")
		if text == "" {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			sb.WriteString(text)
		case diffmatchpatch.DiffDelete:
			sb.WriteString("[-" + text + "-]")
		case diffmatchpatch.DiffInsert:
			sb.WriteString("{+" + text + "+}")
		}
	}
	return sb.String()
}

// joinTokens splits s into words and whitespace runs, one per line, so that
// line-mode diffing compares whole words.
func joinTokens(s string) string {
	var sb strings.Builder
	var prevSpace bool
	for i, r := range strings.ReplaceAll(s, "\n", " ") {
		space := unicode.IsSpace(r)
		if i > 0 && space != prevSpace {
			sb.WriteByte('\n')
		}
		sb.WriteRune(r)
		prevSpace = space
	}
	if sb.Len() > 0 {
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Records writes a table of records, one row each.
func Records(w io.Writer, records []domain.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tCATEGORY\tNAME\tSUMMARY\tDETAILS"); err != nil {
		return err
	}
	for _, r := range records {
		name, _ := r.Attributes.Get("name")
		details, err := json.Marshal(r.Attributes)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Category, stringOf(name), Summary(r), details); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// Summary describes a built-in record in a few words, e.g.
// "processing, capacity 20, operational". Records without a typed view
// summarize as "-".
func Summary(r domain.Record) string {
	details, err := r.Details()
	if err != nil {
		return "-"
	}
	var parts []string
	add := func(s string) {
		if s != "" {
			parts = append(parts, s)
		}
	}
	switch d := details.(type) {
	case domain.ActivityFacility:
		add(d.ActivityType)
		add(d.Location)
		if d.Capacity > 0 {
			add(fmt.Sprintf("capacity %g", d.Capacity))
		}
		add(flag(d.IsOperational, "operational"))
	case domain.OfficeEquipment:
		add(fmt.Sprintf("%g units", d.Quantity))
		add(d.Condition)
		add(flag(d.IsFunctional, "functional"))
	case domain.ShopFacility:
		add(d.Type)
		add(d.Status)
		add(d.Ownership)
		if d.AreaSqFt > 0 {
			add(fmt.Sprintf("%g sq ft", d.AreaSqFt))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func flag(on bool, word string) string {
	if on {
		return word
	}
	return "not " + word
}

// Schema writes the fields of one schema.
func Schema(w io.Writer, schema attribute.Schema) error {
	if _, err := fmt.Fprintf(w, "%s (%s)\n", schema.Category, schema.Label); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "  FIELD\tTYPE\tREQUIRED\tDEFAULT\tALLOWED"); err != nil {
		return err
	}
	for _, f := range schema.Fields {
		def := ""
		if f.Default != nil {
			def = formatValue(f.Default)
		}
		if _, err := fmt.Fprintf(tw, "  %s\t%s\t%t\t%s\t%s\n", f.Name, f.Type, f.Required, def, strings.Join(f.AllowedValues, ",")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func stringOf(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
