package recordings

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"
)

const exportSheetName = "Sensor Log"

// ExportSensorLogXLSX writes lines to an xlsx workbook at outPath. Columns are
// sensorType, timestamp, then every value axis seen in the log, sorted.
func ExportSensorLogXLSX(lines []SensorLine, outPath string) error {
	axes := valueAxes(lines)
	headers := append([]string{"sensorType", "timestamp"}, axes...)

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		if err := setCellValue(f, col+1, 1, header); err != nil {
			return fmt.Errorf("failed to set header cell: %w", err)
		}
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(exportSheetName, "A1", lastHeader, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(exportSheetName, "A", "B", 24); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	for i, line := range lines {
		row := i + 2
		if err := setCellValue(f, 1, row, line.SensorType); err != nil {
			return fmt.Errorf("failed to set cell value at row %d: %w", row, err)
		}
		if err := setCellValue(f, 2, row, line.Timestamp); err != nil {
			return fmt.Errorf("failed to set cell value at row %d: %w", row, err)
		}
		for j, axis := range axes {
			value, ok := line.Values[axis]
			if !ok || value == nil {
				continue
			}
			switch value.(type) {
			case map[string]any, []any:
				value = fmt.Sprint(value)
			}
			if err := setCellValue(f, j+3, row, value); err != nil {
				return fmt.Errorf("failed to set cell value at row %d: %w", row, err)
			}
		}
	}

	if err := f.SetPanes(exportSheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if err := f.SaveAs(outPath); err != nil {
		return fmt.Errorf("failed to save %s: %w", outPath, err)
	}
	return nil
}

func setCellValue(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(exportSheetName, cell, value)
}

func valueAxes(lines []SensorLine) []string {
	seen := make(map[string]struct{})
	for _, line := range lines {
		for axis := range line.Values {
			seen[axis] = struct{}{}
		}
	}
	axes := make([]string, 0, len(seen))
	for axis := range seen {
		axes = append(axes, axis)
	}
	sort.Strings(axes)
	return axes
}
