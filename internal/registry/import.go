package registry

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"invigilation/internal/apperrors"
	"invigilation/internal/logger"
	"invigilation/internal/metrics"
	"invigilation/internal/model"
)

var (
	facultyHeaders = []string{"faculty_id", "name", "mobile_number", "email_id", "is_admin"}
	venueHeaders   = []string{"venue_id", "name", "location", "capacity"}
)

// CheckUploadName rejects anything but an .xlsx workbook.
func CheckUploadName(filename string) error {
	if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return apperrors.Validation("Please upload an XLSX file")
	}
	return nil
}

// sheet reads the active sheet and indexes its header row by lower-cased name.
func sheet(r io.Reader, required []string) ([][]string, map[string]int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, apperrors.Validation("Error processing file: not a readable XLSX workbook")
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn().Err(err).Msg("close workbook")
		}
	}()

	name := f.GetSheetName(f.GetActiveSheetIndex())
	if name == "" {
		name = f.GetSheetName(0)
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", name, err)
	}

	invalid := apperrors.Validation("Invalid Excel format. Required columns: " + strings.Join(required, ", "))
	if len(rows) == 0 {
		return nil, nil, invalid
	}
	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, h := range required {
		if _, ok := index[h]; !ok {
			return nil, nil, invalid
		}
	}
	return rows[1:], index, nil
}

func cell(row []string, index map[string]int, key string) string {
	i, ok := index[key]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseID(raw string, line int) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, apperrors.Validation(fmt.Sprintf("Row %d: invalid id %q", line, raw))
	}
	return id, nil
}

func parseBool(raw string) bool {
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// ImportFaculty upserts the faculty rows of an uploaded workbook by id.
func (s *Service) ImportFaculty(ctx context.Context, filename string, r io.Reader) (model.ImportResult, error) {
	if err := CheckUploadName(filename); err != nil {
		return model.ImportResult{}, err
	}
	rows, index, err := sheet(r, facultyHeaders)
	if err != nil {
		return model.ImportResult{}, err
	}

	batch := make([]model.Faculty, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		if blank(row) {
			continue
		}
		id, err := parseID(cell(row, index, "faculty_id"), line)
		if err != nil {
			return model.ImportResult{}, err
		}
		f := normalizeFaculty(model.Faculty{
			ID:           id,
			Name:         cell(row, index, "name"),
			MobileNumber: cell(row, index, "mobile_number"),
			Email:        cell(row, index, "email_id"),
			RFIDTag:      cell(row, index, "rfid_tag"),
			IsAdmin:      parseBool(cell(row, index, "is_admin")),
		})
		if err := validateFaculty(f); err != nil {
			return model.ImportResult{}, apperrors.Validation(fmt.Sprintf("Row %d: %s", line, apperrors.Message(err)))
		}
		batch = append(batch, f)
	}

	res, err := s.repo.UpsertFaculty(ctx, batch)
	if err != nil {
		return model.ImportResult{}, err
	}
	metrics.ImportedRows.WithLabelValues("faculty", "insert").Add(float64(res.Imported))
	metrics.ImportedRows.WithLabelValues("faculty", "update").Add(float64(res.Updated))
	logger.Info().Int("imported", res.Imported).Int("updated", res.Updated).Msg("faculty import finished")
	return res, nil
}

// ImportVenues upserts the venue rows of an uploaded workbook by id.
func (s *Service) ImportVenues(ctx context.Context, filename string, r io.Reader) (model.ImportResult, error) {
	if err := CheckUploadName(filename); err != nil {
		return model.ImportResult{}, err
	}
	rows, index, err := sheet(r, venueHeaders)
	if err != nil {
		return model.ImportResult{}, err
	}

	batch := make([]model.Venue, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		if blank(row) {
			continue
		}
		id, err := parseID(cell(row, index, "venue_id"), line)
		if err != nil {
			return model.ImportResult{}, err
		}
		capacity, err := strconv.Atoi(cell(row, index, "capacity"))
		if err != nil {
			return model.ImportResult{}, apperrors.Validation(fmt.Sprintf("Row %d: capacity must be a number", line))
		}
		v := model.Venue{
			ID:       id,
			Name:     cell(row, index, "name"),
			Location: cell(row, index, "location"),
			Capacity: capacity,
		}
		if err := validateVenue(v); err != nil {
			return model.ImportResult{}, apperrors.Validation(fmt.Sprintf("Row %d: %s", line, apperrors.Message(err)))
		}
		batch = append(batch, v)
	}

	res, err := s.repo.UpsertVenues(ctx, batch)
	if err != nil {
		return model.ImportResult{}, err
	}
	metrics.ImportedRows.WithLabelValues("venues", "insert").Add(float64(res.Imported))
	metrics.ImportedRows.WithLabelValues("venues", "update").Add(float64(res.Updated))
	return res, nil
}

// ImportMessage renders the operator-facing summary of an import.
func ImportMessage(kind string, res model.ImportResult) string {
	return fmt.Sprintf("Successfully imported %d new %s and updated %d existing %s", res.Imported, kind, res.Updated, kind)
}
