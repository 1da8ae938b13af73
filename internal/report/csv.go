package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"storeroom-backend/internal/inventory/items"
	"storeroom-backend/internal/platform/apperr"
)

const (
	CharsetUTF8        = "utf-8"
	CharsetShiftJIS    = "shift_jis"
	CharsetWindows1252 = "windows-1252"
)

// Encoding maps a charset query value to its encoder. Characters the target
// cannot represent are replaced rather than failing the export.
func Encoding(charset string) (encoding.Encoding, error) {
	switch strings.ToLower(charset) {
	case "", CharsetUTF8, "utf8":
		return encoding.Nop, nil
	case CharsetShiftJIS, "sjis", "cp932":
		return japanese.ShiftJIS, nil
	case CharsetWindows1252, "cp1252":
		return charmap.Windows1252, nil
	}
	return nil, apperr.Invalidf("unsupported charset %q", charset)
}

var csvHeader = []string{"id", "name", "category", "measuring_unit", "quantity", "status", "refundable", "description", "created_at"}

func WriteItemsCSV(w io.Writer, list []items.Item, enc encoding.Encoding) error {
	tw := transform.NewWriter(w, encoding.ReplaceUnsupported(enc.NewEncoder()))
	cw := csv.NewWriter(tw)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, it := range list {
		rec := []string{
			it.ID, it.Name, it.Category, string(it.Unit), strconv.Itoa(it.Quantity),
			string(it.Status), strconv.FormatBool(it.Refundable), it.Description,
			it.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write item %s: %w", it.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return tw.Close()
}
