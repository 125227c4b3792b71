// Package dukascopy downloads BID minute candles from the Dukascopy
// datafeed and turns them into the M5 CSV files the optimizer loads.
package dukascopy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/i-zrhe2016/amazing-3.1/market"
	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/rs/zerolog/log"
)

const DefaultBase = "https://datafeed.dukascopy.com/datafeed"

type Fetcher struct {
	Base      string
	Dir       string // cache dir; merged and part files land here, raw days under raw/
	Client    *http.Client
	Workers   int
	Sleep     time.Duration // polite delay per request
	Timeframe time.Duration
}

func NewFetcher(dir string) *Fetcher {
	return &Fetcher{
		Base:      DefaultBase,
		Dir:       dir,
		Client:    &http.Client{Timeout: 45 * time.Second},
		Workers:   max(4, runtime.NumCPU()),
		Sleep:     50 * time.Millisecond,
		Timeframe: market.DefaultTimeframe,
	}
}

type job struct {
	day time.Time
	url string
	dst string
}

type dayResult struct {
	day  time.Time
	bars []market.Bar
}

type Summary struct {
	Days    int
	OK      int
	Missing int // 404: weekends, holidays, not yet published
	Bars    int
}

// Fetch makes sure the merged file for [from, to] exists and returns its
// path. Yearly part files are reused when present, like the merged file.
func (f *Fetcher) Fetch(ctx context.Context, meta market.InstrumentMeta, from, to time.Time) (string, error) {
	merged := filepath.Join(f.Dir, market.MergedFileName(meta, from, to))
	if st, err := os.Stat(merged); err == nil && st.Size() > 0 {
		return merged, nil
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", err
	}

	var parts []string
	for cur := from; !cur.After(to); {
		partTo := cur.AddDate(0, 0, 365)
		if partTo.After(to) {
			partTo = to
		}
		p := filepath.Join(f.Dir, market.PartFileName(meta, cur, partTo))
		if st, err := os.Stat(p); err != nil || st.Size() == 0 {
			if err := f.fetchPart(ctx, meta, cur, partTo, p); err != nil {
				return "", err
			}
		}
		parts = append(parts, p)
		cur = partTo.AddDate(0, 0, 1)
	}

	if err := mergeParts(parts, merged, meta.Digits); err != nil {
		return "", err
	}
	log.Info().Str("file", merged).Int("parts", len(parts)).Msg("merged history written")
	return merged, nil
}

func (f *Fetcher) fetchPart(ctx context.Context, meta market.InstrumentMeta, from, to time.Time, dst string) error {
	bars, sum, err := f.FetchRange(ctx, meta, from, to)
	if err != nil {
		return err
	}
	log.Info().
		Str("symbol", meta.Name).
		Str("from", from.Format("2006-01-02")).
		Str("to", to.Format("2006-01-02")).
		Int("days", sum.Days).
		Int("missing", sum.Missing).
		Int("bars", sum.Bars).
		Msg("part fetched")
	if len(bars) == 0 {
		return errs.Data("fetch", dst, "no candles for %s between %s and %s", meta.Name, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return market.WriteCSVFile(dst, bars, meta.Digits)
}

// FetchRange downloads every day in [from, to] with a worker pool and
// returns the aggregated bars in time order.
func (f *Fetcher) FetchRange(ctx context.Context, meta market.InstrumentMeta, from, to time.Time) ([]market.Bar, Summary, error) {
	sym := strings.ReplaceAll(meta.Name, "_", "")
	var jobs []job
	for d := from.UTC().Truncate(24 * time.Hour); !d.After(to); d = d.AddDate(0, 0, 1) {
		jobs = append(jobs, job{
			day: d,
			url: candlesURL(f.Base, sym, d),
			dst: filepath.Join(f.Dir, "raw", sym, fmt.Sprintf("%04d", d.Year()), fmt.Sprintf("%02d", d.Month()), fmt.Sprintf("%02d", d.Day())+"_BID_candles_min_1.bi5"),
		})
	}

	sum := Summary{Days: len(jobs)}
	workers := f.Workers
	if workers < 1 {
		workers = 1
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	jobCh := make(chan job)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var results []dayResult
	var firstErr error

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				if f.Sleep > 0 {
					time.Sleep(f.Sleep)
				}

				_, status, err := downloadIfMissing(ctx, client, j.url, j.dst)
				if err == nil && status == http.StatusNotFound {
					mu.Lock()
					sum.Missing++
					mu.Unlock()
					log.Debug().Str("url", j.url).Msg("404")
					continue
				}
				var bars []market.Bar
				if err == nil {
					bars, err = decodeFile(j.dst, j.day, meta.Digits)
				}

				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = &errs.DataError{Op: "fetch", Path: j.url, Err: err}
					}
					mu.Unlock()
					log.Warn().Err(err).Str("url", j.url).Msg("fetch failed")
					continue
				}
				sum.OK++
				results = append(results, dayResult{day: j.day, bars: bars})
				mu.Unlock()
			}
		}()
	}

feed:
	for _, j := range jobs {
		select {
		case jobCh <- j:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobCh)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, sum, err
	}
	if firstErr != nil {
		return nil, sum, firstErr
	}

	sort.Slice(results, func(a, b int) bool { return results[a].day.Before(results[b].day) })
	var m1 []market.Bar
	for _, r := range results {
		m1 = append(m1, r.bars...)
	}
	tf := f.Timeframe
	if tf <= 0 {
		tf = market.DefaultTimeframe
	}
	out := Aggregate(m1, tf)
	sum.Bars = len(out)
	return out, sum, nil
}

// candlesURL uses Dukascopy's zero-based month in the path: Jan=00 ... Dec=11.
func candlesURL(base, symbol string, day time.Time) string {
	month0 := int(day.Month()) - 1
	return fmt.Sprintf("%s/%s/%04d/%02d/%02d/BID_candles_min_1.bi5",
		strings.TrimRight(base, "/"),
		strings.ToUpper(symbol),
		day.Year(), month0, day.Day())
}

func decodeFile(path string, day time.Time, digits int) ([]market.Bar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return DecodeCandles(bytes.NewReader(raw), day, digits)
}

func downloadIfMissing(ctx context.Context, client *http.Client, url, dst string) (downloaded bool, status int, err error) {
	if st, err := os.Stat(dst); err == nil && st.Size() > 0 {
		return false, http.StatusOK, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, 0, err
	}

	tmp := dst + ".part"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, 0, err
	}
	req.Header.Set("User-Agent", "amazing31-fetch/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return false, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, http.StatusNotFound, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, resp.StatusCode, fmt.Errorf("http status %d", resp.StatusCode)
	}

	out, err := os.Create(tmp)
	if err != nil {
		return false, resp.StatusCode, err
	}
	_, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(tmp)
		return false, resp.StatusCode, copyErr
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return false, resp.StatusCode, closeErr
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return false, resp.StatusCode, err
	}
	return true, resp.StatusCode, nil
}

// mergeParts unions the part files by timestamp; a later part wins on
// overlap.
func mergeParts(parts []string, dst string, digits int) error {
	byTs := make(map[int64]market.Bar)
	for _, p := range parts {
		bs, err := market.LoadCSV(p, market.LoadOptions{})
		if err != nil {
			return err
		}
		for _, b := range bs.Bars {
			byTs[b.Timestamp] = b
		}
	}

	bars := make([]market.Bar, 0, len(byTs))
	for _, b := range byTs {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	return market.WriteCSVFile(dst, bars, digits)
}
