package sqlite

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/golang/snappy"

	"sensortrend/internal/model"
)

// snapshotPayload is the JSON form of a table. Timestamps are Unix
// nanoseconds; tables are stored after DropNA so values are finite.
type snapshotPayload struct {
	Name       string               `json:"name"`
	TimeColumn string               `json:"time_column"`
	Columns    []string             `json:"columns"`
	Timestamps []int64              `json:"ts"`
	Values     map[string][]float64 `json:"values"`
}

func encodeSnapshot(t *model.Table) ([]byte, error) {
	p := snapshotPayload{
		Name:       t.Name,
		TimeColumn: t.TimeColumn,
		Columns:    t.Columns,
		Timestamps: make([]int64, t.Len()),
		Values:     t.Values,
	}
	for i, ts := range t.Timestamps {
		p.Timestamps[i] = ts.UnixNano()
	}
	for _, c := range t.Columns {
		for i, v := range t.Values[c] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("snapshot %s: %s[%d] is not finite", t.Name, c, i)
			}
		}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("snapshot marshal: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

func decodeSnapshot(payload []byte) (*model.Table, error) {
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("snapshot decompress: %w", err)
	}
	var p snapshotPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("snapshot unmarshal: %w", err)
	}
	t := model.NewTable(p.Name, p.TimeColumn, p.Columns)
	t.Timestamps = make([]time.Time, len(p.Timestamps))
	for i, ns := range p.Timestamps {
		t.Timestamps[i] = time.Unix(0, ns).UTC()
	}
	for _, c := range p.Columns {
		vals := p.Values[c]
		if len(vals) != len(t.Timestamps) {
			return nil, fmt.Errorf("snapshot %s: column %s has %d values for %d rows", p.Name, c, len(vals), len(t.Timestamps))
		}
		t.Values[c] = vals
	}
	return t, nil
}
