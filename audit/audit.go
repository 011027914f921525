package audit

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/a-h/kv"
)

func New(store kv.Store) *Log {
	return &Log{
		store: store,
		now:   time.Now,
	}
}

// Log records per-day access counts for stored files. Each (tenant, file,
// day, operation) tuple is one key; the kv store increments the version on
// every upsert, so the version number is the count.
type Log struct {
	store kv.Store
	now   func() time.Time
}

func (l *Log) buildKey(tenantID int64, fileID, op string) string {
	day := l.now().UTC().Truncate(24 * time.Hour).Format("2006-01-02")
	return path.Join("/audit", fmt.Sprintf("%d", tenantID), url.PathEscape(fileID), day, op)
}

func (l *Log) Read(ctx context.Context, tenantID int64, fileID string) error {
	return l.store.Put(ctx, l.buildKey(tenantID, fileID, "r"), -1, "")
}

func (l *Log) Write(ctx context.Context, tenantID int64, fileID string) error {
	return l.store.Put(ctx, l.buildKey(tenantID, fileID, "w"), -1, "")
}

func (l *Log) Delete(ctx context.Context, tenantID int64, fileID string) error {
	return l.store.Put(ctx, l.buildKey(tenantID, fileID, "d"), -1, "")
}

// Get returns the per-day access counts recorded for a file.
func (l *Log) Get(ctx context.Context, tenantID int64, fileID string) (stats Stats, ok bool, err error) {
	stats.FileID = fileID
	prefix := path.Join("/audit", fmt.Sprintf("%d", tenantID), url.PathEscape(fileID)) + "/"

	rows, err := l.store.GetPrefix(ctx, prefix, 0, -1)
	if err != nil {
		return stats, false, err
	}

	for _, row := range rows {
		parts := strings.Split(strings.TrimPrefix(row.Key, "/"), "/")
		if len(parts) != 5 {
			return stats, false, fmt.Errorf("invalid key format: %s", row.Key)
		}
		var count Count
		count.Date, err = time.Parse("2006-01-02", parts[3])
		if err != nil {
			return stats, false, fmt.Errorf("failed to parse date in key %q: %w", row.Key, err)
		}
		count.Count = row.Version

		switch parts[4] {
		case "r":
			stats.Reads = append(stats.Reads, count)
		case "w":
			stats.Writes = append(stats.Writes, count)
		case "d":
			stats.Deletes = append(stats.Deletes, count)
		default:
			return stats, false, fmt.Errorf("unknown operation in key %q", row.Key)
		}
		ok = true
	}

	return stats, ok, nil
}

type Stats struct {
	FileID  string
	Reads   []Count
	Writes  []Count
	Deletes []Count
}

func (s Stats) TotalReads() (total int) {
	for _, c := range s.Reads {
		total += c.Count
	}
	return total
}

func (s Stats) TotalWrites() (total int) {
	for _, c := range s.Writes {
		total += c.Count
	}
	return total
}

func (s Stats) LastRead() time.Time {
	if len(s.Reads) == 0 {
		return time.Time{}
	}
	return s.Reads[len(s.Reads)-1].Date
}

type Count struct {
	Date  time.Time
	Count int
}
