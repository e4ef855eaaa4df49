package service

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-queue-api/internal/scheduler"
	appErrors "github.com/noah-isme/lesson-queue-api/pkg/errors"
	"github.com/noah-isme/lesson-queue-api/pkg/export"
)

var queueHeaders = []string{"teacher", "start", "end", "duration", "location", "status", "package", "commission", "revenue"}

var changeHeaders = []string{"teacher", "event", "change", "date", "duration", "location", "status"}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Title string
}

// ExportResult is a rendered export ready to stream.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService turns session queues and change summaries into downloadable files.
type ExportService struct {
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
	cfg    ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Title == "" {
		cfg.Title = "Lesson schedule"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{csv: csv, pdf: pdf, logger: logger, cfg: cfg}
}

// QueueDataset lists every event of the merged queues, one row per event.
func (s *ExportService) QueueDataset(day string, queues []*scheduler.TeacherQueue) export.Dataset {
	data := export.Dataset{
		Title:   fmt.Sprintf("%s %s", s.cfg.Title, day),
		Headers: queueHeaders,
		Rows:    []map[string]string{},
	}
	for _, queue := range queues {
		for _, ev := range queue.GetAllEvents() {
			data.Rows = append(data.Rows, map[string]string{
				"teacher":    queue.Teacher().Username,
				"start":      scheduler.FormatClock(ev.Date),
				"end":        scheduler.FormatClock(ev.End()),
				"duration":   strconv.Itoa(ev.Duration),
				"location":   ev.Location,
				"status":     string(ev.Status),
				"package":    ev.PackageName,
				"commission": ev.Commission.StringFixed(2),
				"revenue":    ev.Revenue.StringFixed(2),
			})
		}
	}
	return data
}

// ChangesDataset lists a pending change summary, one row per dirty event.
func (s *ExportService) ChangesDataset(day string, summary scheduler.ChangeSummary) export.Dataset {
	data := export.Dataset{
		Title:   fmt.Sprintf("%s %s pending changes", s.cfg.Title, day),
		Headers: changeHeaders,
		Rows:    []map[string]string{},
	}
	for _, teacher := range summary.Teachers {
		for _, update := range teacher.Changes.Updates {
			row := map[string]string{"teacher": teacher.TeacherID, "event": update.ID, "change": "update"}
			if update.Date != nil {
				row["date"] = update.Date.Format("2006-01-02 15:04")
			}
			if update.Duration != nil {
				row["duration"] = strconv.Itoa(*update.Duration)
			}
			if update.Location != nil {
				row["location"] = *update.Location
			}
			if update.Status != nil {
				row["status"] = string(*update.Status)
			}
			data.Rows = append(data.Rows, row)
		}
		for _, id := range teacher.Changes.Deletions {
			data.Rows = append(data.Rows, map[string]string{"teacher": teacher.TeacherID, "event": id, "change": "delete"})
		}
	}
	return data
}

// Render encodes data in the requested format. An unknown format is a validation error.
func (s *ExportService) Render(rawFormat, basename string, data export.Dataset) (*ExportResult, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}

	var payload []byte
	switch format {
	case export.FormatPDF:
		payload, err = s.pdf.Render(data, data.Title)
	default:
		payload, err = s.csv.Render(data)
	}
	if err != nil {
		s.logger.Error("render export failed", zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	return &ExportResult{
		Filename:    basename + format.Extension(),
		ContentType: format.ContentType(),
		Payload:     payload,
	}, nil
}
