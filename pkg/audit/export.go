package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// Export encodes records in format
func Export(records []*Record, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatJSON:
		return exportJSON(records)
	case ExportFormatNDJSON:
		return exportNDJSON(records)
	case ExportFormatCSV:
		return exportCSV(records)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// exportJSON exports records as a JSON array
func exportJSON(records []*Record) ([]byte, error) {
	if records == nil {
		records = []*Record{}
	}
	return json.MarshalIndent(records, "", "  ")
}

// exportNDJSON exports records as newline-delimited JSON
func exportNDJSON(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return nil, fmt.Errorf("failed to encode record: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// exportCSV exports records as CSV
func exportCSV(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"ID",
		"Timestamp",
		"TenantID",
		"UserID",
		"Action",
		"Resource",
		"ResourceID",
		"Status",
		"Reason",
		"IPAddress",
		"UserAgent",
		"RequestID",
		"Details",
	}

	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, record := range records {
		details := ""
		if !record.Details.IsZero() {
			b, err := json.Marshal(record.Details)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal details: %w", err)
			}
			details = string(b)
		}

		row := []string{
			strconv.FormatInt(record.ID, 10),
			record.Timestamp.Format("2006-01-02 15:04:05"),
			record.TenantID,
			record.UserID,
			record.Action,
			record.Resource,
			record.ResourceID,
			string(record.Status),
			record.Reason,
			record.IPAddress,
			record.UserAgent,
			record.RequestID,
			details,
		}

		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}
