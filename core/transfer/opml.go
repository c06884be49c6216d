package transfer

import (
	"time"

	"github.com/gilliek/go-opml/opml"
	"github.com/pkg/errors"
)

func encodeOPML(data exportData) ([]byte, error) {
	doc := opml.OPML{
		Version: "2.0",
		Head: opml.Head{
			Title:       "SUPRSS Export - " + data.User.Username,
			DateCreated: data.User.ExportDate.Format(time.RFC1123Z),
			OwnerName:   data.User.Username,
			OwnerEmail:  data.User.Email,
		},
	}

	for _, cat := range data.Categories {
		outline := opml.Outline{Text: cat.Name, Title: cat.Name}
		for _, f := range cat.Feeds {
			outline.Outlines = append(outline.Outlines, feedOutline(f))
		}
		doc.Body.Outlines = append(doc.Body.Outlines, outline)
	}

	if len(data.Collections) > 0 {
		shared := opml.Outline{Text: sharedCollectionsOutline, Title: sharedCollectionsOutline}
		for _, coll := range data.Collections {
			outline := opml.Outline{Text: coll.Name, Title: coll.Name, Description: coll.Description}
			for _, f := range coll.Feeds {
				outline.Outlines = append(outline.Outlines, feedOutline(f))
			}
			shared.Outlines = append(shared.Outlines, outline)
		}
		doc.Body.Outlines = append(doc.Body.Outlines, shared)
	}

	s, err := doc.XML()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func feedOutline(f exportFeed) opml.Outline {
	return opml.Outline{
		Type:        "rss",
		Text:        f.Name,
		Title:       f.Name,
		XMLURL:      f.URL,
		HTMLURL:     f.URL,
		Description: f.Description,
	}
}

// parseOPML reads the feed outlines at any depth. A feed belongs to the category named by its closest parent outline.
func parseOPML(b []byte) ([]entry, error) {
	doc, err := opml.NewOPML(b)
	if err != nil {
		return nil, errors.Wrap(err, "invalid OPML")
	}
	var entries []entry
	walkOutlines(doc.Body.Outlines, "", &entries)
	return entries, nil
}

func walkOutlines(outlines []opml.Outline, category string, entries *[]entry) {
	for _, o := range outlines {
		name := o.Text
		if name == "" {
			name = o.Title
		}
		if o.Type == "rss" || o.XMLURL != "" {
			if o.XMLURL == "" {
				continue
			}
			if name == "" {
				name = "Untitled"
			}
			*entries = append(*entries, entry{
				Name:        name,
				URL:         o.XMLURL,
				Description: o.Description,
				Category:    category,
			})
			continue
		}
		walkOutlines(o.Outlines, name, entries)
	}
}
