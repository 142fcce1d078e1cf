package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"stablecore/integrations/eventlog"
)

// EventsJSONL builds a JSON Lines export of journal records and returns the
// serialised payload alongside a SHA-256 checksum.
func EventsJSONL(records []eventlog.Record) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, record := range records {
		attrs, err := record.Decode()
		if err != nil {
			return nil, "", fmt.Errorf("record %d: %w", record.ID, err)
		}
		payload := map[string]interface{}{
			"id":         record.ID,
			"type":       record.Type,
			"attributes": attrs,
			"created_at": record.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

// EventsCSV builds a CSV export of journal records. Attributes are flattened
// into key=value pairs sorted by key.
func EventsCSV(records []eventlog.Record) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"id", "type", "created_at", "attributes"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	for _, record := range records {
		attrs, err := record.Decode()
		if err != nil {
			return nil, "", fmt.Errorf("record %d: %w", record.ID, err)
		}
		keys := make([]string, 0, len(attrs))
		for key := range attrs {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var flat bytes.Buffer
		for i, key := range keys {
			if i > 0 {
				flat.WriteByte(';')
			}
			flat.WriteString(key + "=" + attrs[key])
		}
		row := []string{
			fmt.Sprintf("%d", record.ID),
			record.Type,
			record.CreatedAt.UTC().Format(time.RFC3339Nano),
			flat.String(),
		}
		if err := writer.Write(row); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
