package sheets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"fillbot/internal/domain"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Service is the Google Sheets/Drive client. It implements
// domain.SheetClient and the exporter the backup gate needs.
type Service struct {
	sheets *sheets.Service
	drive  *drive.Service
	logger *slog.Logger
}

func NewService(ctx context.Context, serviceAccountFile string, logger *slog.Logger) (*Service, error) {
	opts := []option.ClientOption{
		option.WithCredentialsFile(serviceAccountFile),
		option.WithScopes(sheets.SpreadsheetsScope, drive.DriveReadonlyScope),
	}

	sheetsSrv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	driveSrv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive client: %w", err)
	}

	return &Service{sheets: sheetsSrv, drive: driveSrv, logger: logger}, nil
}

// Open resolves the worksheet of a target. An empty worksheet name selects
// the first sheet of the spreadsheet.
func (s *Service) Open(ctx context.Context, target domain.SheetTarget) (domain.Worksheet, error) {
	meta, err := s.sheets.Spreadsheets.Get(target.SpreadsheetID).
		Fields("properties.title", "sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet %s: %w", target.SpreadsheetID, err)
	}
	if len(meta.Sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet %s has no worksheets", target.SpreadsheetID)
	}

	name := target.Worksheet
	if name == "" {
		name = meta.Sheets[0].Properties.Title
	} else {
		found := false
		for _, sh := range meta.Sheets {
			if sh.Properties.Title == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("spreadsheet %s has no worksheet %q", target.SpreadsheetID, name)
		}
	}

	return &worksheet{
		svc:           s.sheets,
		spreadsheetID: target.SpreadsheetID,
		sheetName:     name,
		title:         meta.Properties.Title,
	}, nil
}

// Export downloads the full spreadsheet as an xlsx archive.
func (s *Service) Export(ctx context.Context, spreadsheetID string) ([]byte, error) {
	resp, err := s.drive.Files.Export(spreadsheetID, xlsxMIME).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("export spreadsheet %s: %w", spreadsheetID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export body: %w", err)
	}
	return data, nil
}

type worksheet struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	title         string
}

func (w *worksheet) Title() string { return w.title }

func (w *worksheet) rangeRef(a1 string) string {
	quoted := "'" + strings.ReplaceAll(w.sheetName, "'", "''") + "'"
	if a1 == "" {
		return quoted
	}
	return quoted + "!" + a1
}

// Values returns the whole worksheet as displayed text.
func (w *worksheet) Values(ctx context.Context) ([][]string, error) {
	resp, err := w.svc.Spreadsheets.Values.Get(w.spreadsheetID, w.rangeRef("")).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read worksheet values: %w", err)
	}

	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		out[i] = cells
	}
	return out, nil
}

// ReadNumber returns the computed numeric value of a cell. Formula text and
// non-numeric content are errors: the caller needs the evaluated value.
func (w *worksheet) ReadNumber(ctx context.Context, a1 string) (float64, error) {
	resp, err := w.svc.Spreadsheets.Values.Get(w.spreadsheetID, w.rangeRef(a1)).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read cell %s: %w", a1, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return 0, fmt.Errorf("cell %s is empty", a1)
	}

	switch v := resp.Values[0][0].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "=") {
			return 0, fmt.Errorf("cell %s returned formula text: %s", a1, s)
		}
		return ParseNumber(s)
	default:
		return 0, fmt.Errorf("cell %s has non-numeric value %v", a1, v)
	}
}

func (w *worksheet) CellText(ctx context.Context, a1 string) (string, error) {
	resp, err := w.svc.Spreadsheets.Values.Get(w.spreadsheetID, w.rangeRef(a1)).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read cell %s: %w", a1, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return "", nil
	}
	return fmt.Sprint(resp.Values[0][0]), nil
}

func (w *worksheet) Update(ctx context.Context, a1 string, value any) error {
	vr := &sheets.ValueRange{Values: [][]any{{value}}}
	_, err := w.svc.Spreadsheets.Values.Update(w.spreadsheetID, w.rangeRef(a1), vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update cell %s: %w", a1, err)
	}
	return nil
}
