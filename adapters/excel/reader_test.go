package excel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"flexwta/domain/choice"
	"flexwta/domain/design"
	"flexwta/domain/model"
	"flexwta/ports"
)

var (
	_ ports.PanelSource     = (*PanelReader)(nil)
	_ ports.CovariateSource = (*CovariateReader)(nil)
	_ ports.DesignSource    = (*DesignReader)(nil)
)

func writeCSV(t *testing.T, name string, rows [][]string) string {
	t.Helper()
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(strings.Join(row, ","))
		b.WriteString("\n")
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return path
}

func writeXLSX(t *testing.T, name string, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		if err := f.SetSheetRow("Sheet1", fmt.Sprintf("A%d", i+1), &cells); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), name)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return path
}

func panelRows() [][]string {
	return [][]string{
		{"respondent_id", "scenario_id", "chose_contract", "compensation", "cost"},
		{"r1", "s1", "1", "10", "2"},
		{"r1", "s2", "0", "5", "4"},
		{"r2", "s1", "true", "10", "2"},
	}
}

func TestPanelReaderCSV(t *testing.T) {
	path := writeCSV(t, "panel.csv", panelRows())
	reader := NewPanelReader(map[model.Experiment]string{model.ExperimentEV: path})

	panel, err := reader.LoadPanel(context.Background(), model.ExperimentEV)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if panel.NumRespondents() != 2 {
		t.Fatalf("Expected 2 respondents, got %d", panel.NumRespondents())
	}
	blocks := panel.Respondents()
	if blocks[0].RespondentID != "r1" || len(blocks[0].Observations) != 2 {
		t.Errorf("Respondent grouping wrong: %+v", blocks[0])
	}
	first := blocks[0].Observations[0]
	if !first.ChoseContract || first.Attributes["compensation"] != 10 || first.Attributes["cost"] != 2 {
		t.Errorf("First observation wrong: %+v", first)
	}
	if blocks[0].Observations[1].ChoseContract {
		t.Error("Second observation should be a rejection")
	}
	if !blocks[1].Observations[0].ChoseContract {
		t.Error("chose_contract should accept true as well as 1")
	}
}

func TestPanelReaderXLSXMatchesCSV(t *testing.T) {
	csvPath := writeCSV(t, "panel.csv", panelRows())
	xlsxPath := writeXLSX(t, "panel.xlsx", panelRows())
	ctx := context.Background()

	fromCSV, err := NewPanelReader(map[model.Experiment]string{model.ExperimentEV: csvPath}).
		LoadPanel(ctx, model.ExperimentEV)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	fromXLSX, err := NewPanelReader(map[model.Experiment]string{model.ExperimentEV: xlsxPath}).
		LoadPanel(ctx, model.ExperimentEV)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(fromCSV.Observations) != len(fromXLSX.Observations) {
		t.Fatalf("Row counts differ: %d vs %d", len(fromCSV.Observations), len(fromXLSX.Observations))
	}
	for i := range fromCSV.Observations {
		a, b := fromCSV.Observations[i], fromXLSX.Observations[i]
		if a.RespondentID != b.RespondentID || a.ChoseContract != b.ChoseContract ||
			a.Attributes["compensation"] != b.Attributes["compensation"] {
			t.Errorf("Observation %d differs between formats: %+v vs %+v", i, a, b)
		}
	}
}

func TestPanelReaderRejectsBadInput(t *testing.T) {
	ctx := context.Background()

	missingCol := writeCSV(t, "panel.csv", [][]string{
		{"respondent_id", "scenario_id", "compensation"},
		{"r1", "s1", "10"},
	})
	if _, err := NewPanelReader(map[model.Experiment]string{model.ExperimentEV: missingCol}).
		LoadPanel(ctx, model.ExperimentEV); err == nil {
		t.Error("Expected error for missing chose_contract column, got none")
	}

	badNumber := writeCSV(t, "panel.csv", [][]string{
		{"respondent_id", "scenario_id", "chose_contract", "compensation"},
		{"r1", "s1", "1", "lots"},
	})
	if _, err := NewPanelReader(map[model.Experiment]string{model.ExperimentEV: badNumber}).
		LoadPanel(ctx, model.ExperimentEV); err == nil {
		t.Error("Expected error for non-numeric attribute, got none")
	}

	if _, err := NewPanelReader(nil).LoadPanel(ctx, model.ExperimentHP); err == nil {
		t.Error("Expected error for unconfigured experiment, got none")
	}
}

func TestCovariateReaderLoadsSchema(t *testing.T) {
	path := writeCSV(t, "covariates.csv", [][]string{
		{"respondent_id", "income", "has_ev", "ignored"},
		{"r1", "52.5", "1", "x"},
		{"r2", "31.0", "0", "y"},
	})
	spec := []choice.CovariateSpec{
		{Name: "income", Kind: choice.CovariateNumeric},
		{Name: "has_ev", Kind: choice.CovariateBinary},
	}

	covariates, err := NewCovariateReader(path).LoadCovariates(context.Background(), spec)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if covariates.NumRespondents() != 2 {
		t.Fatalf("Expected 2 respondents, got %d", covariates.NumRespondents())
	}
	row, ok := covariates.Row("r1")
	if !ok {
		t.Fatal("Missing row for r1")
	}
	if row[0] != 52.5 || row[1] != 1 {
		t.Errorf("Row values wrong: %v", row)
	}
}

func TestCovariateReaderRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	spec := []choice.CovariateSpec{{Name: "has_ev", Kind: choice.CovariateBinary}}

	duplicate := writeCSV(t, "covariates.csv", [][]string{
		{"respondent_id", "has_ev"},
		{"r1", "1"},
		{"r1", "0"},
	})
	if _, err := NewCovariateReader(duplicate).LoadCovariates(ctx, spec); err == nil {
		t.Error("Expected error for duplicate respondent, got none")
	}

	notBinary := writeCSV(t, "covariates.csv", [][]string{
		{"respondent_id", "has_ev"},
		{"r1", "2"},
	})
	if _, err := NewCovariateReader(notBinary).LoadCovariates(ctx, spec); err == nil {
		t.Error("Expected error for non-binary flag value, got none")
	}

	if _, err := NewCovariateReader(duplicate).LoadCovariates(ctx, nil); err == nil {
		t.Error("Expected error for empty schema, got none")
	}
}

func TestDesignReaderLoadsScenarios(t *testing.T) {
	path := writeCSV(t, "design.csv", [][]string{
		{"scenario_id", "alternative", "compensation", "cost"},
		{"s1", "contract", "10", "2"},
		{"s1", "optout", "0", "0"},
		{"s2", "contract", "5", "1"},
		{"s2", "optout", "0", "0"},
	})
	reader := NewDesignReader(map[model.Experiment]string{model.ExperimentEV: path})

	table, err := reader.LoadDesign(context.Background(), model.ExperimentEV)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if table.NumScenarios() != 2 {
		t.Fatalf("Expected 2 scenarios, got %d", table.NumScenarios())
	}
	sc := table.Scenarios()[0]
	if sc.ID != "s1" || sc.Contract.Values["compensation"] != 10 {
		t.Errorf("First scenario wrong: %+v", sc)
	}
	if sc.OptOut.Alternative != design.AltOptOut {
		t.Errorf("Expected opt-out pairing, got %+v", sc.OptOut)
	}
}

func TestDesignReaderRejectsBadInput(t *testing.T) {
	ctx := context.Background()

	unknownAlt := writeCSV(t, "design.csv", [][]string{
		{"scenario_id", "alternative", "compensation"},
		{"s1", "statusquo", "10"},
	})
	if _, err := NewDesignReader(map[model.Experiment]string{model.ExperimentEV: unknownAlt}).
		LoadDesign(ctx, model.ExperimentEV); err == nil {
		t.Error("Expected error for unknown alternative, got none")
	}

	// Opt-out rows must be zeroed, which the domain constructor enforces.
	nonZeroOptOut := writeCSV(t, "design.csv", [][]string{
		{"scenario_id", "alternative", "compensation"},
		{"s1", "contract", "10"},
		{"s1", "optout", "3"},
	})
	if _, err := NewDesignReader(map[model.Experiment]string{model.ExperimentEV: nonZeroOptOut}).
		LoadDesign(ctx, model.ExperimentEV); err == nil {
		t.Error("Expected error for non-zero opt-out row, got none")
	}
}

func TestSheetReaderRejectsMissingFile(t *testing.T) {
	if _, err := NewSheetReader(filepath.Join(t.TempDir(), "absent.csv")).ReadTable(); err == nil {
		t.Error("Expected error for missing file, got none")
	}
}
