package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"pereryv/internal/events"
	"pereryv/internal/history"
)

// HistorySource is the slice of the history store the exporter needs.
type HistorySource interface {
	TableExporter
	CountsByDay(ctx context.Context, days int) ([]history.DayCount, error)
}

// Config holds configuration for the export service.
type Config struct {
	// Dir is where workbooks are written.
	Dir string

	// SummaryDays is how many days the daily summary sheet covers.
	SummaryDays int

	// SendToChat delivers the workbook through the sender after writing.
	SendToChat bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Dir:         "exports",
		SummaryDays: 31,
	}
}

// Service builds Excel exports of the reminder history.
type Service struct {
	config Config
	source HistorySource
	writer func() ExcelWriter // factory for creating new Excel writers
	sender DocumentSender
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates the export service. Sender and bus may be nil.
func NewService(
	config Config,
	source HistorySource,
	writerFactory func() ExcelWriter,
	sender DocumentSender,
	bus *events.Bus,
	logger zerolog.Logger,
) *Service {
	if config.Dir == "" {
		config.Dir = DefaultConfig().Dir
	}
	if config.SummaryDays <= 0 {
		config.SummaryDays = DefaultConfig().SummaryDays
	}
	return &Service{
		config: config,
		source: source,
		writer: writerFactory,
		sender: sender,
		bus:    bus,
		logger: logger.With().Str("component", "export").Logger(),
	}
}

// Export writes the history workbook and returns its path.
func (s *Service) Export(ctx context.Context) (string, error) {
	w := s.writer()
	defer w.Close()

	if err := s.writeEventSheets(ctx, w); err != nil {
		return "", err
	}
	if err := s.writeSummarySheet(ctx, w); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.config.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	filename := fmt.Sprintf("reminders_%s.xlsx", time.Now().Format("20060102_150405"))
	path := filepath.Join(s.config.Dir, filename)
	if err := w.SaveToFile(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	s.logger.Info().Str("path", path).Msg("history export written")

	if s.sender != nil && s.config.SendToChat {
		var buf bytes.Buffer
		if err := w.Save(&buf); err != nil {
			return path, fmt.Errorf("serialize workbook for delivery: %w", err)
		}
		if err := s.sender.SendDocument(ctx, filename, &buf, "Reminder history export"); err != nil {
			s.logger.Error().Err(err).Msg("failed to deliver export")
			return path, err
		}
		s.logger.Info().Str("filename", filename).Msg("export delivered to chat")
	}

	if s.bus != nil {
		s.bus.Publish(events.New(events.KindExportCreated, path))
	}
	return path, nil
}

func (s *Service) writeEventSheets(ctx context.Context, w ExcelWriter) error {
	tables, err := s.source.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	for _, table := range tables {
		data, columns, err := s.source.GetTableData(ctx, table)
		if err != nil {
			return fmt.Errorf("read table %s: %w", table, err)
		}

		if err := w.AddSheet(sheetName(table)); err != nil {
			return err
		}
		if err := w.WriteHeader(columns); err != nil {
			return err
		}
		for _, rowData := range data {
			row := make([]interface{}, len(columns))
			for i, col := range columns {
				row[i] = formatCell(rowData[col])
			}
			if err := w.WriteRow(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) writeSummarySheet(ctx context.Context, w ExcelWriter) error {
	counts, err := s.source.CountsByDay(ctx, s.config.SummaryDays)
	if err != nil {
		return fmt.Errorf("daily summary: %w", err)
	}

	if err := w.AddSheet("Daily summary"); err != nil {
		return err
	}
	if err := w.WriteHeader([]string{"day", "kind", "count"}); err != nil {
		return err
	}
	for _, c := range counts {
		if err := w.WriteRow([]interface{}{c.Day, c.Kind, c.Count}); err != nil {
			return err
		}
	}
	return nil
}

// sheetName turns a table name into a readable sheet title.
func sheetName(table string) string {
	switch table {
	case "reminder_events":
		return "Events"
	default:
		return table
	}
}

// formatCell normalizes values for the spreadsheet.
func formatCell(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case nil:
		return ""
	default:
		return val
	}
}
