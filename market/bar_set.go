package market

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
)

// CSVHeader is the column layout of every bar file this module reads or
// writes.
var CSVHeader = []string{"timestamp", "open", "high", "low", "close"}

type GapKind string

const (
	GapWeekend    GapKind = "weekend"
	GapSuspicious GapKind = "suspicious"
	GapMinor      GapKind = "minor"
)

// GapPolicy decides which gaps abort a load.
type GapPolicy string

const (
	// GapReport accepts every on-grid gap and only records it. It is the
	// default: downloaded histories carry holiday and outage holes.
	GapReport GapPolicy = "report"
	// GapAllowWeekend accepts weekend and minor gaps.
	GapAllowWeekend GapPolicy = "weekend"
	// GapStrict rejects any missing interval.
	GapStrict GapPolicy = "strict"
)

func ParseGapPolicy(s string) (GapPolicy, error) {
	switch GapPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", GapReport:
		return GapReport, nil
	case GapAllowWeekend:
		return GapAllowWeekend, nil
	case GapStrict:
		return GapStrict, nil
	}
	return "", errs.Param("gap_policy", "unknown gap policy %q (report|weekend|strict)", s)
}

// Gap is a run of missing intervals in front of Bars[BeforeIdx].
type Gap struct {
	BeforeIdx int     `json:"before_idx"`
	Missing   int     `json:"missing"`
	From      int64   `json:"from"`
	To        int64   `json:"to"`
	Kind      GapKind `json:"kind"`
}

type GapStats struct {
	TotalIntervals   int
	PresentIntervals int
	MissingIntervals int
	GapCount         int
	WeekendGaps      int
	SuspiciousGaps   int
	LongestGap       int
	LongestGapKind   GapKind
}

type LoadOptions struct {
	Timeframe time.Duration
	GapPolicy GapPolicy
}

// BarSet is an ordered, immutable bar series loaded from one file.
type BarSet struct {
	Path      string
	Timeframe time.Duration
	Bars      []Bar
	Gaps      []Gap
}

// LoadCSV reads a timestamp,open,high,low,close file. Malformed rows,
// duplicate or out-of-order timestamps, spacing that is not a multiple
// of the timeframe and gaps rejected by the policy are DataErrors;
// nothing is interpolated or re-sorted.
func LoadCSV(path string, opts LoadOptions) (*BarSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.DataError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	bs, err := ReadCSV(f, opts)
	if err != nil {
		if de, ok := err.(*errs.DataError); ok && de.Path == "" {
			de.Path = path
		}
		return nil, err
	}
	bs.Path = path
	return bs, nil
}

func ReadCSV(r io.Reader, opts LoadOptions) (*BarSet, error) {
	if opts.Timeframe <= 0 {
		opts.Timeframe = DefaultTimeframe
	}
	if opts.GapPolicy == "" {
		opts.GapPolicy = GapReport
	}

	bs := &BarSet{Timeframe: opts.Timeframe}
	step := opts.Timeframe.Milliseconds()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if lineNo == 1 && strings.HasPrefix(strings.ToLower(line), "timestamp") {
			continue
		}

		b, err := parseBarLine(line)
		if err != nil {
			return nil, errs.Data("parse", "", "line %d: %v", lineNo, err)
		}

		if n := len(bs.Bars); n > 0 {
			prev := bs.Bars[n-1].Timestamp
			switch {
			case b.Timestamp == prev:
				return nil, errs.Data("parse", "", "line %d: duplicate timestamp %d", lineNo, b.Timestamp)
			case b.Timestamp < prev:
				return nil, errs.Data("parse", "", "line %d: timestamp %d before %d", lineNo, b.Timestamp, prev)
			case step > 0 && (b.Timestamp-prev)%step != 0:
				return nil, errs.Data("parse", "", "line %d: %s after the previous bar is off the %s grid",
					lineNo, time.Duration(b.Timestamp-prev)*time.Millisecond, TimeframeLabel(opts.Timeframe))
			}
		}
		bs.Bars = append(bs.Bars, b)
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Data("read", "", "%v", err)
	}
	if len(bs.Bars) == 0 {
		return nil, errs.Data("parse", "", "no bars")
	}

	bs.BuildGapReport()
	if err := bs.checkGaps(opts.GapPolicy); err != nil {
		return nil, err
	}
	return bs, nil
}

func parseBarLine(line string) (Bar, error) {
	parts := strings.Split(line, ",")
	if len(parts) != len(CSVHeader) {
		return Bar{}, fmt.Errorf("want %d fields, got %d", len(CSVHeader), len(parts))
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("timestamp: %w", err)
	}

	var px [4]float64
	for i := range px {
		if px[i], err = strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64); err != nil {
			return Bar{}, fmt.Errorf("%s: %w", CSVHeader[i+1], err)
		}
	}

	b := Bar{Timestamp: ts, Open: px[0], High: px[1], Low: px[2], Close: px[3]}
	if !b.Valid() {
		return Bar{}, fmt.Errorf("inconsistent ohlc %v/%v/%v/%v", b.Open, b.High, b.Low, b.Close)
	}
	return b, nil
}

func (bs *BarSet) checkGaps(policy GapPolicy) error {
	for _, g := range bs.Gaps {
		reject := false
		switch policy {
		case GapStrict:
			reject = true
		case GapAllowWeekend:
			reject = g.Kind == GapSuspicious
		}
		if reject {
			return errs.Data("gap", bs.Path, "%d missing %s bars (%s) between %s and %s",
				g.Missing, TimeframeLabel(bs.Timeframe), g.Kind,
				time.UnixMilli(g.From).UTC().Format(time.RFC3339),
				time.UnixMilli(g.To).UTC().Format(time.RFC3339))
		}
	}
	return nil
}

func (bs *BarSet) BuildGapReport() {
	bs.Gaps = bs.Gaps[:0]
	step := bs.Timeframe.Milliseconds()
	if step <= 0 {
		return
	}

	for i := 1; i < len(bs.Bars); i++ {
		prev, cur := bs.Bars[i-1].Timestamp, bs.Bars[i].Timestamp
		missing := int((cur-prev)/step) - 1
		if missing <= 0 {
			continue
		}
		bs.Gaps = append(bs.Gaps, Gap{
			BeforeIdx: i,
			Missing:   missing,
			From:      prev,
			To:        cur,
			Kind:      classifyGap(prev+step, time.Duration(missing)*bs.Timeframe),
		})
	}
}

// classifyGap: >= 24h starting Fri/Sat/Sun (UTC) is the weekend close,
// any other long hole or >= 10 minutes is suspicious.
func classifyGap(startMs int64, d time.Duration) GapKind {
	wd := time.UnixMilli(startMs).UTC().Weekday()

	if d >= 24*time.Hour {
		if wd == time.Friday || wd == time.Saturday || wd == time.Sunday {
			return GapWeekend
		}
		return GapSuspicious
	}
	if d >= 10*time.Minute {
		return GapSuspicious
	}
	return GapMinor
}

func (bs *BarSet) Stats() GapStats {
	var s GapStats
	s.PresentIntervals = len(bs.Bars)

	for _, g := range bs.Gaps {
		s.GapCount++
		s.MissingIntervals += g.Missing
		if g.Missing > s.LongestGap {
			s.LongestGap = g.Missing
			s.LongestGapKind = g.Kind
		}
		switch g.Kind {
		case GapWeekend:
			s.WeekendGaps++
		case GapSuspicious:
			s.SuspiciousGaps++
		}
	}
	s.TotalIntervals = s.PresentIntervals + s.MissingIntervals
	return s
}

func (bs *BarSet) First() time.Time { return bs.Bars[0].Time() }
func (bs *BarSet) Last() time.Time  { return bs.Bars[len(bs.Bars)-1].Time() }

// Between returns the bars with from <= t < to, sharing the backing array.
func (bs *BarSet) Between(from, to time.Time) []Bar {
	lo := sort.Search(len(bs.Bars), func(i int) bool {
		return bs.Bars[i].Timestamp >= from.UnixMilli()
	})
	hi := sort.Search(len(bs.Bars), func(i int) bool {
		return bs.Bars[i].Timestamp >= to.UnixMilli()
	})
	return bs.Bars[lo:hi]
}

func (bs *BarSet) PrintStats(w io.Writer) {
	s := bs.Stats()
	tf := TimeframeLabel(bs.Timeframe)

	fmt.Fprintf(w, "---- %s Bar Stats ----\n", tf)
	if bs.Path != "" {
		fmt.Fprintf(w, "File: %s\n", bs.Path)
	}
	if len(bs.Bars) > 0 {
		fmt.Fprintf(w, "Range: %s → %s\n", bs.First().Format(time.RFC3339), bs.Last().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "         Total Intervals: %d\n", s.TotalIntervals)
	fmt.Fprintf(w, "       Present Intervals: %d\n", s.PresentIntervals)
	fmt.Fprintf(w, "       Missing Intervals: %d\n", s.MissingIntervals)
	fmt.Fprintf(w, "              Total Gaps: %d\n", s.GapCount)
	fmt.Fprintf(w, "            Weekend Gaps: %d\n", s.WeekendGaps)
	fmt.Fprintf(w, "         Suspicious Gaps: %d\n", s.SuspiciousGaps)
	fmt.Fprintf(w, "Longest Gap: %d %s bars (%s)\n", s.LongestGap, tf, s.LongestGapKind)
	fmt.Fprintln(w, "--------------------------")
}
