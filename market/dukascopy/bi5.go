package dukascopy

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/i-zrhe2016/amazing-3.1/market"
	"github.com/ulikunitz/xz/lzma"
)

// recordSize is one minute candle in a BID_candles_min_1 payload:
// uint32 second offset, uint32 open, close, low, high (price * 10^digits),
// float32 volume, all big-endian.
const recordSize = 24

// DecodeCandles decompresses an lzma bi5 stream and returns the minute
// bars of the day starting at day. Zero-volume filler candles (market
// closed) are dropped.
func DecodeCandles(r io.Reader, day time.Time, digits int) ([]market.Bar, error) {
	lr, err := lzma.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("lzma: %w", err)
	}
	raw, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("lzma: %w", err)
	}
	if len(raw)%recordSize != 0 {
		return nil, fmt.Errorf("payload of %d bytes is not a multiple of %d", len(raw), recordSize)
	}

	scale := math.Pow10(digits)
	base := day.UTC().UnixMilli()
	bars := make([]market.Bar, 0, len(raw)/recordSize)

	for off := 0; off < len(raw); off += recordSize {
		rec := raw[off : off+recordSize]
		vol := math.Float32frombits(binary.BigEndian.Uint32(rec[20:24]))
		if vol <= 0 {
			continue
		}
		px := func(i int) float64 {
			return float64(binary.BigEndian.Uint32(rec[i:i+4])) / scale
		}
		bars = append(bars, market.Bar{
			Timestamp: base + int64(binary.BigEndian.Uint32(rec[0:4]))*1000,
			Open:      px(4),
			Close:     px(8),
			Low:       px(12),
			High:      px(16),
		})
	}
	return bars, nil
}

// EncodeCandles is the inverse of DecodeCandles. It is used to build
// fixtures and to re-pack cached days.
func EncodeCandles(w io.Writer, day time.Time, digits int, bars []market.Bar) error {
	lw, err := lzma.NewWriter(w)
	if err != nil {
		return err
	}
	scale := math.Pow10(digits)
	base := day.UTC().UnixMilli()

	rec := make([]byte, recordSize)
	for _, b := range bars {
		binary.BigEndian.PutUint32(rec[0:4], uint32((b.Timestamp-base)/1000))
		binary.BigEndian.PutUint32(rec[4:8], uint32(math.Round(b.Open*scale)))
		binary.BigEndian.PutUint32(rec[8:12], uint32(math.Round(b.Close*scale)))
		binary.BigEndian.PutUint32(rec[12:16], uint32(math.Round(b.Low*scale)))
		binary.BigEndian.PutUint32(rec[16:20], uint32(math.Round(b.High*scale)))
		binary.BigEndian.PutUint32(rec[20:24], math.Float32bits(1))
		if _, err := lw.Write(rec); err != nil {
			return err
		}
	}
	return lw.Close()
}

// Aggregate folds ordered bars into tf buckets aligned to the epoch.
func Aggregate(bars []market.Bar, tf time.Duration) []market.Bar {
	step := tf.Milliseconds()
	if step <= 0 || len(bars) == 0 {
		return nil
	}

	var out []market.Bar
	for _, b := range bars {
		bucket := b.Timestamp - b.Timestamp%step
		n := len(out)
		if n == 0 || out[n-1].Timestamp != bucket {
			out = append(out, market.Bar{
				Timestamp: bucket,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
			})
			continue
		}
		cur := &out[n-1]
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
	}
	return out
}
