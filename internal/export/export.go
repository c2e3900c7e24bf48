package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BenjaminSRussell/urlmon/internal/storage"
	"github.com/BenjaminSRussell/urlmon/internal/types"
)

// Formats accepted by Export
const (
	FormatJSON    = "json"
	FormatCSV     = "csv"
	FormatSitemap = "sitemap"
)

type Exporter struct {
	outputDir string
}

func NewExporter(outputDir string) (*Exporter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Exporter{
		outputDir: outputDir,
	}, nil
}

// path places relative output names inside the exporter's directory
func (e *Exporter) path(outputFile string) string {
	if filepath.IsAbs(outputFile) {
		return outputFile
	}
	return filepath.Join(e.outputDir, outputFile)
}

func (e *Exporter) ExportJSON(visits []types.Visit, outputFile string) error {
	data, err := json.MarshalIndent(visits, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(e.path(outputFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}

	return nil
}

func (e *Exporter) ExportCSV(visits []types.Visit, outputFile string) error {
	file, err := os.Create(e.path(outputFile))
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	headers := []string{"URL", "Hop", "ParentURL", "StatusCode", "Reason", "Kind", "Redirect", "Referenced", "Error", "ElapsedMS", "CheckedAt"}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, v := range visits {
		record := []string{
			v.URL,
			strconv.Itoa(v.Hop),
			v.ParentURL,
			strconv.Itoa(v.StatusCode),
			v.Reason,
			string(v.Kind),
			v.Redirect,
			strings.Join(v.Referenced, " "),
			v.Error,
			strconv.FormatInt(v.ElapsedMS, 10),
			v.CheckedAt.Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	return nil
}

func (e *Exporter) ExportSitemap(visits []types.Visit, outputFile string) (int, error) {
	return WriteSitemap(visits, SitemapConfig{
		OutputFile:        e.path(outputFile),
		DefaultPriority:   0.8,
		IncludeLastmod:    true,
		IncludeChangefreq: true,
	})
}

// Export loads the visits recorded in dataDir and writes them to
// outputFile in the given format. It returns the number of entries
// written.
func Export(dataDir, format, outputFile string) (int, error) {
	visits, err := storage.LoadVisits(dataDir)
	if err != nil {
		return 0, fmt.Errorf("failed to load visits: %w", err)
	}

	exporter, err := NewExporter(filepath.Dir(outputFile))
	if err != nil {
		return 0, err
	}
	name := filepath.Base(outputFile)

	switch strings.ToLower(format) {
	case FormatJSON:
		err = exporter.ExportJSON(visits, name)
	case FormatCSV:
		err = exporter.ExportCSV(visits, name)
	case FormatSitemap:
		return exporter.ExportSitemap(visits, name)
	default:
		return 0, fmt.Errorf("unknown export format %q (want json, csv or sitemap)", format)
	}
	if err != nil {
		return 0, err
	}

	return len(visits), nil
}
