// Package export renders a group's finished business date to CSV. The
// rollover treats export as a best-effort collaborator: a failed export
// is logged and the reset continues.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"attendance-backend/internal/store"
)

// Exporter writes one group's data for one record date somewhere
// durable.
type Exporter interface {
	Export(ctx context.Context, groupID int64, recordDate time.Time) error
}

// CSV writes one file per group and record date under a base directory.
type CSV struct {
	store store.Store
	dir   string
}

// NewCSV creates a CSV exporter rooted at dir.
func NewCSV(s store.Store, dir string) *CSV {
	return &CSV{store: s, dir: dir}
}

func (e *CSV) Export(ctx context.Context, groupID int64, recordDate time.Time) error {
	const op = "export.CSV.Export"

	logs, err := e.store.ListActivityLogs(ctx, groupID, recordDate)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	events, err := e.store.ListAttendanceEvents(ctx, groupID, recordDate)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	name := fmt.Sprintf("group_%d_%s.csv", groupID, recordDate.Format("2006-01-02"))
	f, err := os.Create(filepath.Join(e.dir, name))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"kind", "employee", "shift", "name", "count", "seconds", "deviation_min", "fine"}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, l := range logs {
		row := []string{
			"activity",
			strconv.FormatInt(l.EmployeeID, 10),
			l.Shift,
			l.Activity,
			strconv.Itoa(l.ActivityCount),
			strconv.FormatInt(l.AccumulatedSeconds, 10),
			"",
			"",
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	for _, ev := range events {
		row := []string{
			"clock",
			strconv.FormatInt(ev.EmployeeID, 10),
			ev.Shift,
			ev.EventType,
			"",
			"",
			strconv.Itoa(ev.DeviationMinutes),
			ev.Fine.String(),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
