package observers

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionRule selects files in Dir by name and age. An empty Prefix or
// Suffix matches any name.
type RetentionRule struct {
	Dir    string
	Prefix string
	Suffix string
	MaxAge time.Duration
}

func (r RetentionRule) matches(name string) bool {
	return strings.HasPrefix(name, r.Prefix) && strings.HasSuffix(name, r.Suffix)
}

// Sweep deletes files that fall under a rule and were last modified before
// now minus the rule's MaxAge. Rules with no Dir or no MaxAge are skipped,
// and so is a missing directory. It returns how many files were removed per
// directory and every error it hit along the way.
func Sweep(rules []RetentionRule, now time.Time) (map[string]int, error) {
	removed := make(map[string]int)
	var errs error
	for _, r := range rules {
		if strings.TrimSpace(r.Dir) == "" || r.MaxAge <= 0 {
			continue
		}
		n, err := sweepDir(r, now.Add(-r.MaxAge))
		if n > 0 {
			removed[r.Dir] += n
		}
		errs = errors.Join(errs, err)
	}
	return removed, errs
}

func sweepDir(r RetentionRule, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(r.Dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return 0, nil
	case err != nil:
		return 0, err
	}
	var n int
	var errs error
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !r.matches(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.Dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = errors.Join(errs, err)
			continue
		}
		n++
	}
	return n, errs
}
