package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/repository"
)

// ExportFormat selects the marks sheet encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ContentType returns the MIME type of the encoded sheet.
func (f ExportFormat) ContentType() string {
	if f == ExportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

var marksSheetHeader = []string{
	"Roll Number", "Student Name", "File", "Status", "Score", "Total Marks", "Percentage", "Result", "Remarks",
}

const marksSheetName = "Marks"

// ExportService renders marks sheets for an assignment.
type ExportService interface {
	// MarksSheet writes the sheet to w and returns a download file name.
	MarksSheet(ctx context.Context, assignmentID string, format ExportFormat, w io.Writer) (string, error)
}

type exportService struct {
	assignments repository.AssignmentRepository
	logger      zerolog.Logger
}

// NewExportService builds the export service.
func NewExportService(assignments repository.AssignmentRepository, logger zerolog.Logger) ExportService {
	return &exportService{
		assignments: assignments,
		logger:      logger.With().Str("component", "export_service").Logger(),
	}
}

func (s *exportService) MarksSheet(ctx context.Context, assignmentID string, format ExportFormat, w io.Writer) (string, error) {
	if format != ExportCSV && format != ExportXLSX {
		return "", ErrUnknownFormat
	}

	record, err := s.assignments.GetWithSubmissions(ctx, assignmentID)
	if err != nil {
		return "", notFound(err, ErrAssignmentNotFound)
	}
	assignment := record.ToModel()

	rows := make([][]string, 0, len(assignment.Submissions)+1)
	rows = append(rows, marksSheetHeader)
	for _, submission := range assignment.Submissions {
		rows = append(rows, marksRow(assignment, submission))
	}

	switch format {
	case ExportXLSX:
		err = writeXLSX(w, rows)
	default:
		err = writeCSV(w, rows)
	}
	if err != nil {
		return "", fmt.Errorf("render marks sheet: %w", err)
	}

	s.logger.Debug().Str("assignment_id", assignmentID).Str("format", string(format)).Int("rows", len(rows)-1).Msg("marks sheet exported")

	return fmt.Sprintf("marks-%s.%s", slug(assignment.Title), format), nil
}

func marksRow(assignment models.Assignment, submission models.Submission) []string {
	row := []string{
		submission.StudentRollNumber,
		submission.StudentName,
		submission.FileName,
		string(submission.SubmissionStatus),
		"", formatNumber(assignment.TotalMarks), "", "", "",
	}
	if evaluation := submission.Evaluation; evaluation != nil {
		row[4] = formatNumber(evaluation.Score)
		row[6] = formatNumber(evaluation.PercentageScore)
		row[7] = "FAIL"
		if evaluation.Passed {
			row[7] = "PASS"
		}
		row[8] = evaluation.Remarks
	}
	return row
}

func writeCSV(w io.Writer, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}

func writeXLSX(w io.Writer, rows [][]string) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", marksSheetName); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, value := range row {
			values[j] = value
			if i > 0 && (j == 4 || j == 5 || j == 6) && value != "" {
				if number, err := strconv.ParseFloat(value, 64); err == nil {
					values[j] = number
				}
			}
		}
		if err := file.SetSheetRow(marksSheetName, cell, &values); err != nil {
			return err
		}
	}

	_, err := file.WriteTo(w)
	return err
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func slug(title string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, title)
	parts := strings.FieldsFunc(mapped, func(r rune) bool { return r == '-' })
	if len(parts) == 0 {
		return "assignment"
	}
	return strings.Join(parts, "-")
}
