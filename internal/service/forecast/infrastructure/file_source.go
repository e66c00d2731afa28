package infrastructure

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"demandcast/internal/pkg/logger"
	"demandcast/internal/service/forecast/domain"
)

var dateLayouts = []string{time.DateOnly, time.RFC3339, "2006-01-02 15:04:05", "2006/01/02"}

// FileSource 从 CSV 或 XLSX 文件读取历史销售数据，首行为列名。
// 无法识别的列（如导出时带出的索引列）会被忽略。
type FileSource struct {
	Path  string
	Sheet string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) LoadSales(ctx context.Context) (domain.Frame, error) {
	var (
		table [][]string
		err   error
	)
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".csv":
		table, err = readCSV(s.Path)
	case ".xlsx", ".xlsm":
		table, err = readXLSX(s.Path, s.Sheet)
	default:
		return domain.Frame{}, errors.Errorf("unsupported sales file %q", s.Path)
	}
	if err != nil {
		return domain.Frame{}, err
	}
	frame, err := ParseTable(table)
	if err != nil {
		return domain.Frame{}, errors.Wrapf(err, "parse %s", s.Path)
	}
	logger.Ctx(ctx).Info().Str("path", s.Path).Int("rows", frame.Len()).Strs("columns", frame.Columns.Names()).Msg("sales file loaded")
	return frame, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open sales csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var out [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read sales csv")
		}
		out = append(out, rec)
	}
	return out, nil
}

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open sales workbook")
	}
	defer f.Close()
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %q", sheet)
	}
	return rows, nil
}

// ParseTable 把带表头的字符串表格转换为 Frame
func ParseTable(table [][]string) (domain.Frame, error) {
	if len(table) == 0 {
		return domain.Frame{}, errors.New("empty table")
	}
	var cols domain.ColumnSet
	index := make([]domain.ColumnSet, len(table[0]))
	for i, h := range table[0] {
		if c, ok := domain.ColumnByName(strings.ToLower(strings.TrimSpace(h))); ok {
			index[i] = c
			cols = cols.With(c)
		}
	}
	if cols == 0 {
		return domain.Frame{}, errors.New("no known column in header")
	}

	rows := make([]domain.SalesRecord, 0, len(table)-1)
	for line, raw := range table[1:] {
		rec := domain.SalesRecord{Price: math.NaN(), Quantity: math.NaN()}
		for i, c := range index {
			if c == 0 {
				continue
			}
			var v string
			if i < len(raw) {
				v = strings.TrimSpace(raw[i])
			}
			if err := assign(&rec, c, v); err != nil {
				return domain.Frame{}, errors.Wrapf(err, "line %d", line+2)
			}
		}
		rows = append(rows, rec)
	}
	return domain.NewFrame(cols, rows), nil
}

func assign(rec *domain.SalesRecord, c domain.ColumnSet, v string) error {
	switch c {
	case domain.ColDate:
		d, err := parseDate(v)
		if err != nil {
			return err
		}
		rec.Date = d
	case domain.ColProductID:
		rec.ProductID = v
	case domain.ColProductName:
		rec.ProductName = v
	case domain.ColCountry:
		rec.Country = v
	case domain.ColChannel:
		rec.Channel = v
	case domain.ColCollection:
		rec.Collection = v
	case domain.ColPrice:
		return parseNumber(v, &rec.Price)
	case domain.ColQuantity:
		return parseNumber(v, &rec.Quantity)
	case domain.ColForecastWeek:
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "forecast_week %q", v)
		}
		rec.ForecastWeek = n
	}
	return nil
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, v); err == nil {
			return d, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognised date %q", v)
}

// parseNumber 空值保留为缺失
func parseNumber(v string, dst *float64) error {
	if v == "" || strings.EqualFold(v, "nan") {
		*dst = math.NaN()
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
	if err != nil {
		return errors.Wrapf(err, "number %q", v)
	}
	*dst = f
	return nil
}
