package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aquasecurity/table"
	"go.uber.org/zap"

	"github.com/ssvlabs/eth-tss/pkgs/logging"
)

// SetGlobalLogger creates a logger writing to the console and to the rotating log file
func SetGlobalLogger(name, level, levelFormat, format, filePath string) (*zap.Logger, error) {
	var fileOptions *logging.LogFileOptions
	if filePath != "" {
		// If the log file doesn't exist, create it
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		_ = f.Close()
		fileOptions = &logging.LogFileOptions{FileName: filePath}
	}
	if err := logging.SetGlobalLogger(level, levelFormat, format, fileOptions); err != nil {
		return nil, fmt.Errorf("logging.SetGlobalLogger: %w", err)
	}
	return zap.L().Named(name), nil
}

// CreateDirIfNotExist creates the output directory
func CreateDirIfNotExist(path string) error {
	if path == "" {
		return fmt.Errorf("😥 output path is empty")
	}
	stat, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, os.ModePerm); err != nil {
			return fmt.Errorf("😥 Failed to create output directory: %w", err)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if !stat.IsDir() {
		return fmt.Errorf("😥 output path %s is not a directory", path)
	}
	return nil
}

// WriteJSON prints v as indented JSON
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteTable prints a single table to w
func WriteTable(w io.Writer, headers []string, rows ...[]string) {
	tbl := table.New(w)
	tbl.SetHeaders(headers...)
	for _, row := range rows {
		tbl.AddRow(row...)
	}
	tbl.Render()
}
