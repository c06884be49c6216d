package transfer

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var csvHeader = []string{
	"Type",
	"Category/Collection",
	"Feed Name",
	"Feed URL",
	"Description",
	"Update Frequency (hours)",
	"Color",
}

// column aliases accepted on import, by priority
var (
	csvURLColumns      = []string{"Feed URL", "URL", "url", "xmlUrl"}
	csvNameColumns     = []string{"Feed Name", "Name", "Title", "title", "name"}
	csvCategoryColumns = []string{"Category/Collection", "Category", "category"}
	csvDescColumns     = []string{"Description", "description"}
	csvFreqColumns     = []string{"Update Frequency (hours)", "update_frequency_hours"}
	csvColorColumns    = []string{"Color", "color"}
)

func encodeCSV(data exportData) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, cat := range data.Categories {
		if len(cat.Feeds) == 0 {
			// keep empty categories
			if err := w.Write([]string{"Personal", cat.Name, "", "", "", "", cat.Color}); err != nil {
				return nil, err
			}
			continue
		}
		for _, f := range cat.Feeds {
			row := []string{"Personal", cat.Name, f.Name, f.URL, f.Description, strconv.Itoa(f.UpdateFrequencyHours), cat.Color}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	for _, coll := range data.Collections {
		for _, f := range coll.Feeds {
			if err := w.Write([]string{"Collection", coll.Name, f.Name, f.URL, f.Description, "", ""}); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

// parseCSV reads the rows having a feed URL. The first row is the header.
func parseCSV(content string) ([]entry, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(content, "\ufeff")))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.New("empty CSV document")
	} else if err != nil {
		return nil, errors.Wrap(err, "invalid CSV")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	get := func(row []string, names []string) string {
		for _, n := range names {
			if i, ok := cols[n]; ok && i < len(row) {
				if v := strings.TrimSpace(row[i]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	var entries []entry
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrap(err, "invalid CSV")
		}
		url := get(row, csvURLColumns)
		if url == "" {
			continue
		}
		name := get(row, csvNameColumns)
		if name == "" {
			name = "Untitled"
		}
		freq, _ := strconv.Atoi(get(row, csvFreqColumns))
		entries = append(entries, entry{
			Name:        name,
			URL:         url,
			Description: get(row, csvDescColumns),
			Category:    get(row, csvCategoryColumns),
			Color:       get(row, csvColorColumns),
			Frequency:   freq,
		})
	}
	return entries, nil
}
