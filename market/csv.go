package market

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteCSV writes bars in the loader's format. Prices are printed with
// the instrument's digits so files stay byte-stable across runs.
func WriteCSV(w io.Writer, bars []Bar, digits int) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, strings.Join(CSVHeader, ",")); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', digits, 64) }
	for _, b := range bars {
		if _, err := fmt.Fprintf(bw, "%d,%s,%s,%s,%s\n",
			b.Timestamp, f(b.Open), f(b.High), f(b.Low), f(b.Close)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteCSVFile writes through a .part file and renames it, so a crash
// never leaves a truncated file under the final name.
func WriteCSVFile(path string, bars []Bar, digits int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, bars, digits); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
