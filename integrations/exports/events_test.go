package exports

import (
	"strings"
	"testing"
	"time"

	"stablecore/integrations/eventlog"
)

func sampleRecords() []eventlog.Record {
	return []eventlog.Record{
		{ID: 1, Type: "challenge.started", Attributes: `{"size":"5","id":"1"}`, CreatedAt: time.Unix(1700, 0)},
		{ID: 2, Type: "stablecoin.profit", Attributes: `{"amount":"7"}`, CreatedAt: time.Unix(1701, 0)},
	}
}

func TestEventsCSV(t *testing.T) {
	data, checksum, err := EventsCSV(sampleRecords())
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(data) == 0 || checksum == "" {
		t.Fatalf("expected data and checksum")
	}
	output := string(data)
	if !strings.HasPrefix(output, "id,type,created_at,attributes\n") {
		t.Fatalf("missing header: %s", output)
	}
	if !strings.Contains(output, "id=1;size=5") {
		t.Fatalf("attributes not flattened in key order: %s", output)
	}
}

func TestEventsJSONL(t *testing.T) {
	data, checksum, err := EventsJSONL(sampleRecords())
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if len(data) == 0 || checksum == "" {
		t.Fatalf("expected data and checksum")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[1], `"type":"stablecoin.profit"`) {
		t.Fatalf("unexpected line %s", lines[1])
	}
	again, sum2, _ := EventsJSONL(sampleRecords())
	if string(again) != string(data) || sum2 != checksum {
		t.Fatalf("export must be deterministic")
	}
}

func TestEventsRejectsCorruptAttributes(t *testing.T) {
	records := []eventlog.Record{{ID: 9, Type: "x", Attributes: "{"}}
	if _, _, err := EventsJSONL(records); err == nil {
		t.Fatalf("expected decode error")
	}
}
