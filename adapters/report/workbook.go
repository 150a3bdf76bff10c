// Package report publishes finished runs for human consumption: an Excel
// workbook with the aggregate and per-replicate numbers, and the run report
// rendered to markdown and HTML.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"flexwta/domain/design"
	"flexwta/domain/result"
	apperrors "flexwta/internal/errors"
	"flexwta/internal/logging"
)

// Sheet names in the results workbook
const (
	sheetAggregates    = "Aggregates"
	sheetStatistics    = "Statistics"
	sheetProbabilities = "Probabilities"
	sheetFailures      = "Failures"
	sheetManifest      = "Manifest"
)

// WriteWorkbook writes one run's outputs as an Excel workbook. The grid is
// optional; passing nil skips the probabilities sheet.
func WriteWorkbook(path string, report *result.RunReport, statistics []result.Statistic, grid *design.ProbabilityGrid) error {
	if report == nil {
		return apperrors.InvalidInput("workbook requires a run report")
	}

	f := excelize.NewFile()
	defer f.Close()

	// The default sheet becomes the aggregates sheet.
	if err := f.SetSheetName("Sheet1", sheetAggregates); err != nil {
		return apperrors.ExportFailed("failed to name aggregates sheet", err)
	}
	if err := writeAggregatesSheet(f, report); err != nil {
		return err
	}
	if err := writeStatisticsSheet(f, statistics); err != nil {
		return err
	}
	if grid != nil {
		if err := writeProbabilitiesSheet(f, grid); err != nil {
			return err
		}
	}
	if err := writeFailuresSheet(f, report.Failures); err != nil {
		return err
	}
	if err := writeManifestSheet(f, report); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.ExportFailed("failed to create workbook directory", err)
	}
	if err := f.SaveAs(path); err != nil {
		return apperrors.ExportFailed(fmt.Sprintf("failed to save workbook %s", path), err)
	}
	logging.Info("[ReportWriter] Wrote workbook %s (%d aggregates, %d statistics)",
		path, len(report.Aggregates), len(statistics))
	return nil
}

func writeAggregatesSheet(f *excelize.File, report *result.RunReport) error {
	headers := []string{"name", "mean", "ci_low", "ci_high", "p_value", "n_usable", "n_intended"}
	rows := make([][]interface{}, 0, len(report.Aggregates))
	for _, a := range report.Aggregates {
		rows = append(rows, []interface{}{a.Name, a.Mean, a.CILow, a.CIHigh, a.PValue, a.NUsable, a.NIntended})
	}
	return fillSheet(f, sheetAggregates, headers, rows)
}

func writeStatisticsSheet(f *excelize.File, statistics []result.Statistic) error {
	if _, err := f.NewSheet(sheetStatistics); err != nil {
		return apperrors.ExportFailed("failed to create statistics sheet", err)
	}
	headers := []string{"replicate", "name", "value", "std_err"}
	rows := make([][]interface{}, 0, len(statistics))
	for _, s := range statistics {
		row := []interface{}{s.Replicate, s.Name, s.Value, nil}
		if s.StdErr != nil {
			row[3] = *s.StdErr
		}
		rows = append(rows, row)
	}
	return fillSheet(f, sheetStatistics, headers, rows)
}

func writeProbabilitiesSheet(f *excelize.File, grid *design.ProbabilityGrid) error {
	if _, err := f.NewSheet(sheetProbabilities); err != nil {
		return apperrors.ExportFailed("failed to create probabilities sheet", err)
	}
	headers := make([]string, 0, 1+len(grid.Columns))
	headers = append(headers, "scenario_id")
	for _, c := range grid.Columns {
		headers = append(headers, c.Label)
	}
	rows := make([][]interface{}, len(grid.ScenarioIDs))
	for i, id := range grid.ScenarioIDs {
		row := make([]interface{}, 0, len(headers))
		row = append(row, id)
		for _, c := range grid.Columns {
			row = append(row, c.Values[i])
		}
		rows[i] = row
	}
	return fillSheet(f, sheetProbabilities, headers, rows)
}

func writeFailuresSheet(f *excelize.File, failures []result.ReplicateFailure) error {
	if _, err := f.NewSheet(sheetFailures); err != nil {
		return apperrors.ExportFailed("failed to create failures sheet", err)
	}
	headers := []string{"replicate", "stage", "reason"}
	rows := make([][]interface{}, 0, len(failures))
	for _, fl := range failures {
		rows = append(rows, []interface{}{fl.Replicate, fl.Stage, fl.Reason})
	}
	return fillSheet(f, sheetFailures, headers, rows)
}

func writeManifestSheet(f *excelize.File, report *result.RunReport) error {
	if _, err := f.NewSheet(sheetManifest); err != nil {
		return apperrors.ExportFailed("failed to create manifest sheet", err)
	}
	m := report.Manifest
	rows := [][]interface{}{
		{"run_id", m.RunID.String()},
		{"experiment", string(m.Experiment)},
		{"seed", m.Seed},
		{"replicates", m.Replicates},
		{"completed", report.Completed},
		{"inner_draws", m.InnerDraws},
		{"burn_in", m.BurnIn},
		{"spec_hash", string(m.SpecHash)},
		{"design_hash", string(m.DesignHash)},
		{"fingerprint", string(m.Fingerprint)},
		{"code_version", m.CodeVersion},
	}
	return fillSheet(f, sheetManifest, []string{"key", "value"}, rows)
}

// fillSheet writes a header row plus data rows into an existing sheet
func fillSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return apperrors.ExportFailed(fmt.Sprintf("failed to write %s header", sheet), err)
		}
	}
	for r, row := range rows {
		rowIdx := r + 2
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, rowIdx)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return apperrors.ExportFailed(fmt.Sprintf("failed to write %s row %d", sheet, rowIdx), err)
			}
		}
	}
	return nil
}
