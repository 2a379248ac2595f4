package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// LoadFile reads abbreviation to name mappings from a YAML or XLSX file.
// YAML files hold a flat mapping. XLSX files use the first sheet with the abbreviation
// in column A and the name in column B; a header row starting with "abbreviation" is skipped.
func LoadFile(path string) (map[string]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAML(path)
	case ".xlsx":
		return loadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported catalog file type: %s", filepath.Ext(path))
	}
}

func loadYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	products := make(map[string]string)
	if err := yaml.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("parsing catalog YAML: %w", err)
	}
	return products, nil
}

func loadXLSX(path string) (map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("reading catalog sheet: %w", err)
	}

	products := make(map[string]string)
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "abbreviation") {
			continue
		}
		abbreviation, name := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if abbreviation == "" || name == "" {
			continue
		}
		products[abbreviation] = name
	}
	return products, nil
}
