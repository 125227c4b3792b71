package market

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
)

const (
	dateLayout   = "2006-01-02"
	mergedSuffix = "-merged.csv"
)

// MergedFileName is the cache name of a full-range M5 bid history,
// e.g. audnzd-m5-bid-2016-03-01-2026-02-26-merged.csv.
func MergedFileName(meta InstrumentMeta, start, end time.Time) string {
	return fmt.Sprintf("%s-m5-bid-%s-%s%s", meta.Ticker(), start.Format(dateLayout), end.Format(dateLayout), mergedSuffix)
}

// PartFileName is the cache name of one yearly download chunk.
func PartFileName(meta InstrumentMeta, start, end time.Time) string {
	return fmt.Sprintf("%s-m5-bid-%s-%s.csv", meta.Ticker(), start.Format(dateLayout), end.Format(dateLayout))
}

// HistoryRange is the date range the optimizer asks for: the last
// 365*years days ending today (UTC, date granularity).
func HistoryRange(now time.Time, years int) (start, end time.Time) {
	end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start = end.AddDate(0, 0, -365*years)
	return start, end
}

type mergedFile struct {
	path       string
	start, end time.Time
}

func (m mergedFile) span() time.Duration { return m.end.Sub(m.start) }

// SelectMergedFile picks a merged history for meta in dir. The exact
// name wins; otherwise the narrowest file covering [start, end], then the
// widest file of any range. Ties go to the latest end date.
func SelectMergedFile(dir string, meta InstrumentMeta, start, end time.Time) (string, error) {
	exact := filepath.Join(dir, MergedFileName(meta, start, end))
	if fi, err := os.Stat(exact); err == nil && fi.Size() > 0 {
		return exact, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", &errs.DataError{Op: "discover", Path: dir, Err: err}
	}

	prefix := meta.Ticker() + "-m5-bid-"
	var cover, all []mergedFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, mergedSuffix) {
			continue
		}
		mid := name[len(prefix) : len(name)-len(mergedSuffix)]
		if len(mid) != 2*len(dateLayout)+1 {
			continue
		}
		s, err1 := time.Parse(dateLayout, mid[:len(dateLayout)])
		t, err2 := time.Parse(dateLayout, mid[len(dateLayout)+1:])
		if err1 != nil || err2 != nil {
			continue
		}
		mf := mergedFile{path: filepath.Join(dir, name), start: s, end: t}
		if !s.After(start) && !t.Before(end) {
			cover = append(cover, mf)
		}
		all = append(all, mf)
	}

	if len(cover) > 0 {
		sort.SliceStable(cover, func(i, j int) bool {
			if cover[i].span() != cover[j].span() {
				return cover[i].span() < cover[j].span()
			}
			return cover[i].end.After(cover[j].end)
		})
		return cover[0].path, nil
	}
	if len(all) > 0 {
		sort.SliceStable(all, func(i, j int) bool {
			if all[i].span() != all[j].span() {
				return all[i].span() > all[j].span()
			}
			return all[i].end.After(all[j].end)
		})
		return all[0].path, nil
	}
	return "", errs.Data("discover", dir, "no merged file for %s", meta.Name)
}
