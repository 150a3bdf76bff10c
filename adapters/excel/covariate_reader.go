package excel

import (
	"context"
	"fmt"

	"flexwta/domain/choice"
	apperrors "flexwta/internal/errors"
	"flexwta/internal/logging"
)

// CovariateReader loads respondent covariates from a single file shared by
// both experiments. Rows are keyed by respondent_id; the declared covariate
// schema decides which columns are read and how they are validated.
type CovariateReader struct {
	path string
}

// NewCovariateReader creates a covariate source over one file
func NewCovariateReader(path string) *CovariateReader {
	return &CovariateReader{path: path}
}

// LoadCovariates reads the file and validates it against the schema
func (r *CovariateReader) LoadCovariates(ctx context.Context, spec []choice.CovariateSpec) (*choice.CovariateTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(spec) == 0 {
		return nil, apperrors.IngestInvalid("covariate schema cannot be empty")
	}

	table, err := NewSheetReader(r.path).ReadTable()
	if err != nil {
		return nil, apperrors.Wrapf(err, "reading covariate file %s", r.path)
	}
	required := make([]string, 0, len(spec)+1)
	required = append(required, colRespondentID)
	for _, s := range spec {
		required = append(required, s.Name)
	}
	if err := table.requireColumns(required...); err != nil {
		return nil, apperrors.IngestInvalid(fmt.Sprintf("covariate file %s: %v", r.path, err))
	}

	rows := make(map[string]map[string]float64, len(table.Rows))
	for i, row := range table.Rows {
		respondentID, err := stringCell(row, colRespondentID, i)
		if err != nil {
			return nil, apperrors.IngestInvalid(fmt.Sprintf("covariate file %s: %v", r.path, err))
		}
		if _, dup := rows[respondentID]; dup {
			return nil, apperrors.IngestInvalid(fmt.Sprintf("covariate file %s: duplicate respondent %s", r.path, respondentID))
		}

		values := make(map[string]float64, len(spec))
		for _, s := range spec {
			v, err := floatCell(row, s.Name, i)
			if err != nil {
				return nil, apperrors.IngestInvalid(fmt.Sprintf("covariate file %s: %v", r.path, err))
			}
			values[s.Name] = v
		}
		rows[respondentID] = values
	}

	covariates, err := choice.NewCovariateTable(spec, rows)
	if err != nil {
		return nil, err
	}
	logging.Info("[CovariateReader] Loaded covariates for %d respondents (%d columns)",
		covariates.NumRespondents(), len(spec))
	return covariates, nil
}
