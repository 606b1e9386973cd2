package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/torosent/tracefire/internal/extractor"
	"github.com/torosent/tracefire/internal/replay"
)

// StatusBucket represents the aggregated failure count for a class/code pair.
type StatusBucket struct {
	Class string
	Code  string
	Count int
}

// FlattenStatusBuckets converts a nested class->code map into a sorted slice of StatusBucket rows.
// Rows are sorted by descending count, then by class/code for stability.
func FlattenStatusBuckets(buckets map[string]map[string]int) []StatusBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0)
	for class, codes := range buckets {
		for code, count := range codes {
			rows = append(rows, StatusBucket{Class: class, Code: code, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Class == rows[j].Class {
				return rows[i].Code < rows[j].Code
			}
			return rows[i].Class < rows[j].Class
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// Classify buckets a failed record by where it failed: "replay" for records
// the scheduler resolved itself, "check" for bodies rejected by a response
// check, "http" for non-2xx responses and "transport" for everything else.
func Classify(r replay.LatencyRecord) (class, code string) {
	var checkErr *extractor.CheckError
	switch {
	case errors.Is(r.Err, replay.ErrUnresolved):
		return "replay", "UNRESOLVED"
	case errors.Is(r.Err, replay.ErrAbandoned):
		return "replay", "ABANDONED"
	case errors.Is(r.Err, replay.ErrExecutorPanic):
		return "replay", "PANIC"
	case errors.As(r.Err, &checkErr):
		return "check", "FAILED"
	case r.StatusCode > 0:
		return "http", strconv.Itoa(r.StatusCode)
	case errors.Is(r.Err, context.DeadlineExceeded) || isTimeout(r.Err):
		return "transport", "TIMEOUT"
	case errors.Is(r.Err, context.Canceled):
		return "transport", "CANCELED"
	}
	var urlErr *url.Error
	if errors.As(r.Err, &urlErr) && urlErr.Err != nil {
		return "transport", fallbackStatusCode(urlErr.Err)
	}
	return "transport", fallbackStatusCode(r.Err)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// SanitizeStatusCode normalizes a free-form status into an upper-case token.
func SanitizeStatusCode(status string) string {
	trimmed := strings.TrimSpace(status)
	if trimmed == "" {
		return "UNKNOWN"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", ".", "_", "-", "_")
	normalized := replacer.Replace(trimmed)
	normalized = strings.ToUpper(normalized)
	normalized = strings.Trim(normalized, "_")
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}

func fallbackStatusCode(err error) string {
	if err == nil {
		return "UNKNOWN"
	}
	typeName := fmt.Sprintf("%T", err)
	typeName = strings.TrimPrefix(typeName, "*")
	if idx := strings.LastIndex(typeName, "/"); idx != -1 {
		typeName = typeName[idx+1:]
	}
	if idx := strings.LastIndex(typeName, "."); idx != -1 {
		typeName = typeName[idx+1:]
	}
	return SanitizeStatusCode(typeName)
}
