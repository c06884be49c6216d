package transfer

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type (
	exportData struct {
		User        exportUser
		Categories  []exportCategory
		Collections []exportCollection
	}

	exportUser struct {
		Username   string    `json:"username"`
		Email      string    `json:"email"`
		ExportDate time.Time `json:"export_date"`
	}

	exportCategory struct {
		Name  string       `json:"name"`
		Color string       `json:"color"`
		Feeds []exportFeed `json:"feeds"`
	}

	exportCollection struct {
		Name        string       `json:"name"`
		Description string       `json:"description"`
		IsShared    bool         `json:"is_shared"`
		Feeds       []exportFeed `json:"feeds"`
	}

	// exportFeed is also read back on import, along with the aliases found in other tools exports.
	exportFeed struct {
		Name                 string          `json:"name"`
		Title                string          `json:"title,omitempty"`
		URL                  string          `json:"url"`
		XMLURL               string          `json:"xmlUrl,omitempty"`
		Description          string          `json:"description"`
		Category             string          `json:"category,omitempty"`
		UpdateFrequencyHours int             `json:"update_frequency_hours,omitempty"`
		ArticlesStatus       []ArticleStatus `json:"articles_status,omitempty"`
	}

	jsonDocument struct {
		Version    string     `json:"version"`
		Generator  string     `json:"generator"`
		ExportDate time.Time  `json:"export_date"`
		User       exportUser `json:"user"`
		Data       jsonData   `json:"data"`
	}

	jsonData struct {
		Categories  []exportCategory   `json:"categories"`
		Collections []exportCollection `json:"collections"`
	}
)

func encodeJSON(data exportData) ([]byte, error) {
	doc := jsonDocument{
		Version:    exportVersion,
		Generator:  exportGenerator,
		ExportDate: data.User.ExportDate,
		User:       data.User,
		Data:       jsonData{Categories: data.Categories, Collections: data.Collections},
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (f exportFeed) entry(category string) entry {
	e := entry{
		Name:        f.Name,
		URL:         f.URL,
		Description: f.Description,
		Category:    category,
		Frequency:   f.UpdateFrequencyHours,
	}
	if e.Name == "" {
		e.Name = f.Title
	}
	if e.URL == "" {
		e.URL = f.XMLURL
	}
	if e.Category == "" {
		e.Category = f.Category
	}
	return e
}

// parseJSON reads a SUPRSS export, a flat list of feeds or a {"feeds": [...]} object.
func parseJSON(b []byte) ([]entry, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, errors.New("empty JSON document")
	}

	var feeds []exportFeed
	if b[0] == '[' {
		if err := json.Unmarshal(b, &feeds); err != nil {
			return nil, errors.Wrap(err, "invalid JSON")
		}
		return feedEntries(feeds, ""), nil
	}

	var doc struct {
		Data  *jsonData    `json:"data"`
		Feeds []exportFeed `json:"feeds"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "invalid JSON")
	}
	if doc.Data == nil {
		return feedEntries(doc.Feeds, ""), nil
	}

	var entries []entry
	for _, cat := range doc.Data.Categories {
		name := cat.Name
		if name == "" {
			name = "Uncategorized"
		}
		for _, e := range feedEntries(cat.Feeds, name) {
			e.Color = cat.Color
			entries = append(entries, e)
		}
	}
	for _, coll := range doc.Data.Collections {
		entries = append(entries, feedEntries(coll.Feeds, collectionCategoryPrefix+coll.Name)...)
	}
	return entries, nil
}

func feedEntries(feeds []exportFeed, category string) []entry {
	entries := make([]entry, 0, len(feeds))
	for _, f := range feeds {
		if e := f.entry(category); e.URL != "" {
			entries = append(entries, e)
		}
	}
	return entries
}
