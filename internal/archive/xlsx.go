package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

var envelopeColumns = []string{"id", "parent_id", "created_at", "updated_at"}

// WriteXLSX renders records as a workbook with one sheet per registered
// category. Columns follow the schema field order; keys the schema does not
// declare land in a trailing "extra" column as JSON.
func WriteXLSX(w io.Writer, registry *attribute.Registry, records []domain.Record) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	byCategory := make(map[attribute.Category][]domain.Record)
	for _, r := range records {
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}

	first := true
	for _, category := range registry.Categories() {
		schema, err := registry.Schema(category)
		if err != nil {
			return err
		}
		sheet := string(category)
		if first {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return err
			}
			first = false
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}

		fields := schema.FieldNames()
		header := make([]any, 0, len(envelopeColumns)+len(fields)+1)
		for _, c := range envelopeColumns {
			header = append(header, c)
		}
		for _, name := range fields {
			header = append(header, name)
		}
		header = append(header, "extra")
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return err
		}
		last, err := excelize.CoordinatesToCellName(len(header), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return err
		}

		for i, r := range byCategory[category] {
			row, err := recordRow(schema, fields, r)
			if err != nil {
				return err
			}
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return err
			}
		}
		if err := f.SetColWidth(sheet, "A", "B", 38); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func recordRow(schema attribute.Schema, fields []string, r domain.Record) ([]any, error) {
	row := []any{r.ID, r.ParentID, formatTime(r.CreatedAt), formatTime(r.UpdatedAt)}
	for _, name := range fields {
		v, ok := r.Attributes.Get(name)
		if !ok || v == nil {
			row = append(row, nil)
			continue
		}
		row = append(row, cellValue(v))
	}
	extra := attribute.NewBag()
	if raw, opaque := r.Attributes.Opaque(); opaque {
		extra.Set(attribute.DetailsField, raw)
	}
	for _, key := range r.Attributes.Keys() {
		if _, declared := schema.Field(key); !declared {
			v, _ := r.Attributes.Get(key)
			extra.Set(key, v)
		}
	}
	if extra.Len() == 0 {
		return append(row, nil), nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("archive: encode extra fields of %s: %w", r.ID, err)
	}
	return append(row, string(b)), nil
}

func cellValue(v any) any {
	switch x := v.(type) {
	case string, bool, float64, float32, int, int64, int32:
		return x
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
