package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/trackerkit/perkwatch/src/eventmodels"
)

func ExportToCsv(outDir string, events []*eventmodels.AutomationEvent, outFilePrefix string) (string, error) {
	now := time.Now()
	outFilePath := path.Join(outDir, fmt.Sprintf("%s_%s.csv", outFilePrefix, now.Format("2006-01-02_15-04-05")))

	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
			return "", fmt.Errorf("ExportToCsv: failed to create directory: %w", err)
		}
	}

	file, err := os.Create(outFilePath)
	if err != nil {
		return "", fmt.Errorf("ExportToCsv: failed to create file: %w", err)
	}
	defer file.Close()

	gocsv.SetCSVWriter(func(out io.Writer) *gocsv.SafeCSVWriter {
		writer := csv.NewWriter(out)
		writer.Comma = ','
		return gocsv.NewSafeCSVWriter(writer)
	})

	if err := gocsv.MarshalFile(&events, file); err != nil {
		return "", fmt.Errorf("ExportToCsv: failed to write csv: %w", err)
	}

	return outFilePath, nil
}

func ImportFromCsv(inFilePath string) ([]*eventmodels.AutomationEvent, error) {
	file, err := os.Open(inFilePath)
	if err != nil {
		return nil, fmt.Errorf("ImportFromCsv: failed to open file: %w", err)
	}
	defer file.Close()

	var events []*eventmodels.AutomationEvent
	if err := gocsv.UnmarshalFile(file, &events); err != nil {
		return nil, fmt.Errorf("ImportFromCsv: failed to parse csv: %w", err)
	}

	return events, nil
}
