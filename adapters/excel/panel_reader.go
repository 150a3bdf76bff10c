package excel

import (
	"context"
	"fmt"

	"flexwta/domain/choice"
	"flexwta/domain/model"
	apperrors "flexwta/internal/errors"
	"flexwta/internal/logging"
)

// Columns every panel file must carry. All remaining columns are read as
// contract attribute values.
const (
	colRespondentID  = "respondent_id"
	colScenarioID    = "scenario_id"
	colChoseContract = "chose_contract"
)

// PanelReader loads observed choice panels from per-experiment files.
// One file row is one answered TIOLI scenario; the opt-out alternative has
// no attributes and therefore no row.
type PanelReader struct {
	paths map[model.Experiment]string
}

// NewPanelReader creates a panel source over experiment -> file path
func NewPanelReader(paths map[model.Experiment]string) *PanelReader {
	copied := make(map[model.Experiment]string, len(paths))
	for k, v := range paths {
		copied[k] = v
	}
	return &PanelReader{paths: copied}
}

// LoadPanel reads and groups one experiment's choice panel
func (r *PanelReader) LoadPanel(ctx context.Context, experiment model.Experiment) (*choice.Panel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := r.paths[experiment]
	if !ok {
		return nil, apperrors.IngestInvalid(fmt.Sprintf("no panel file configured for experiment %s", experiment))
	}

	table, err := NewSheetReader(path).ReadTable()
	if err != nil {
		return nil, apperrors.Wrapf(err, "reading panel file %s", path)
	}
	if err := table.requireColumns(colRespondentID, colScenarioID, colChoseContract); err != nil {
		return nil, apperrors.IngestInvalid(fmt.Sprintf("panel file %s: %v", path, err))
	}

	attributeColumns := make([]string, 0, len(table.Headers))
	for _, h := range table.Headers {
		switch h {
		case colRespondentID, colScenarioID, colChoseContract:
		default:
			attributeColumns = append(attributeColumns, h)
		}
	}
	if len(attributeColumns) == 0 {
		return nil, apperrors.IngestInvalid(fmt.Sprintf("panel file %s has no attribute columns", path))
	}

	observations := make([]choice.Observation, 0, len(table.Rows))
	for i, row := range table.Rows {
		respondentID, err := stringCell(row, colRespondentID, i)
		if err != nil {
			return nil, apperrors.IngestInvalid(fmt.Sprintf("panel file %s: %v", path, err))
		}
		scenarioID, err := stringCell(row, colScenarioID, i)
		if err != nil {
			return nil, apperrors.IngestInvalid(fmt.Sprintf("panel file %s: %v", path, err))
		}
		chose, err := boolCell(row, colChoseContract, i)
		if err != nil {
			return nil, apperrors.IngestInvalid(fmt.Sprintf("panel file %s: %v", path, err))
		}

		attributes := make(map[string]float64, len(attributeColumns))
		for _, col := range attributeColumns {
			v, err := floatCell(row, col, i)
			if err != nil {
				return nil, apperrors.IngestInvalid(fmt.Sprintf("panel file %s: %v", path, err))
			}
			attributes[col] = v
		}

		observations = append(observations, choice.Observation{
			RespondentID:  respondentID,
			ScenarioID:    scenarioID,
			Attributes:    attributes,
			ChoseContract: chose,
		})
	}

	panel, err := choice.NewPanel(experiment, observations)
	if err != nil {
		return nil, err
	}
	logging.Info("[PanelReader] Loaded %s panel: %d respondents, %d observations",
		experiment, panel.NumRespondents(), len(panel.Observations))
	return panel, nil
}
