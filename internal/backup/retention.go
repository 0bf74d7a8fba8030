package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// RetentionPolicy is how many snapshots to keep per age tier:
// hourly (<24h), daily (<7d), weekly (<30d), monthly (<365d).
// Snapshots older than a year are always removed.
type RetentionPolicy struct {
	Hourly  int `json:"hourly"`
	Daily   int `json:"daily"`
	Weekly  int `json:"weekly"`
	Monthly int `json:"monthly"`
}

// DefaultRetention keeps a day of hourlies, a week of dailies, a month of
// weeklies and a year of monthlies.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12}
}

// Info describes a snapshot on disk.
type Info struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// List returns the snapshots in dir, newest first. Files that do not match
// the snapshot naming are ignored.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var out []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, err := time.Parse(fileLayout, entry.Name())
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{Path: filepath.Join(dir, entry.Name()), Timestamp: ts, Size: info.Size()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// Prune removes snapshots beyond the policy and returns the removed paths.
// Removal continues past individual failures; the last error is returned.
func Prune(dir string, policy RetentionPolicy, now time.Time) ([]string, error) {
	snapshots, err := List(dir)
	if err != nil {
		return nil, err
	}

	var hourly, daily, weekly, monthly, toDelete []string
	for _, s := range snapshots {
		switch age := now.Sub(s.Timestamp); {
		case age < 24*time.Hour:
			hourly = append(hourly, s.Path)
		case age < 7*24*time.Hour:
			daily = append(daily, s.Path)
		case age < 30*24*time.Hour:
			weekly = append(weekly, s.Path)
		case age < 365*24*time.Hour:
			monthly = append(monthly, s.Path)
		default:
			toDelete = append(toDelete, s.Path)
		}
	}

	toDelete = append(toDelete, overflow(hourly, policy.Hourly)...)
	toDelete = append(toDelete, overflow(daily, policy.Daily)...)
	toDelete = append(toDelete, overflow(weekly, policy.Weekly)...)
	toDelete = append(toDelete, overflow(monthly, policy.Monthly)...)

	var removed []string
	var lastErr error
	for _, path := range toDelete {
		if err := os.Remove(path); err != nil {
			lastErr = err
			continue
		}
		removed = append(removed, path)
	}
	if lastErr != nil {
		return removed, fmt.Errorf("failed to delete some backups: %w", lastErr)
	}
	return removed, nil
}

func overflow(paths []string, keep int) []string {
	if keep < 0 {
		keep = 0
	}
	if len(paths) <= keep {
		return nil
	}
	return paths[keep:]
}
