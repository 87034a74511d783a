package budgets

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Export renders the year's budgets as an xlsx workbook.
func (s *Service) Export(ctx context.Context, year int) ([]byte, error) {
	list, err := s.ListYear(ctx, year)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetName(sheet, fmt.Sprintf("Presupuestos %d", year)); err != nil {
		return nil, err
	}
	sheet = fmt.Sprintf("Presupuestos %d", year)

	header := []any{"Área", "Año", "Asignado", "Ejercido", "Disponible", "% Ejercido", "Sobregirado"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	row := 2
	for _, b := range list {
		overspent := ""
		if b.IsOverspent() {
			overspent = "SÍ"
		}
		excelRow := []any{
			b.Area,
			b.Year,
			b.Total.Float64(),
			b.Spent.Float64(),
			b.Available().Float64(),
			fmt.Sprintf("%.1f%%", b.PercentUsed()),
			overspent,
		}
		cell := fmt.Sprintf("A%d", row)
		if err := f.SetSheetRow(sheet, cell, &excelRow); err != nil {
			return nil, err
		}
		row++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
