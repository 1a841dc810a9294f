package logview

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/zhinst/zhinst-go/pkg/log"
)

// RunExport writes the matching events of path to w as "jsonl" or "csv".
func RunExport(path, format string, opts Options, w io.Writer) error {
	switch format {
	case "jsonl":
		enc := json.NewEncoder(w)
		return each(path, opts, func(event log.Event) error {
			if err := enc.Encode(event); err != nil {
				return fmt.Errorf("failed to encode event: %w", err)
			}
			return nil
		})
	case "csv":
		return exportCSV(path, opts, w)
	}
	return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
}

func exportCSV(path string, opts Options, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "connection_id", "direction", "layer", "category", "serial", "type", "message_id", "path", "status"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	return each(path, opts, func(event log.Event) error {
		var msgID, nodePath, status string
		if m := event.Message; m != nil {
			msgID = strconv.FormatUint(uint64(m.MessageID), 10)
			nodePath = m.Path
			if m.Status != nil {
				status = m.Status.String()
			}
		}
		row := []string{
			event.Timestamp.UTC().Format(timeLayout),
			event.ConnectionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.Serial,
			typeLabel(event),
			msgID,
			nodePath,
			status,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
}

// RunFilter copies the matching events of path into a new log file at
// output and returns how many were written.
func RunFilter(path, output string, opts Options) (int, error) {
	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	err = each(path, opts, func(event log.Event) error {
		logger.Log(event)
		count++
		return nil
	})
	return count, err
}
