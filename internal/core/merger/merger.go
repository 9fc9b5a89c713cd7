// Package merger consolidates descriptors that share a URL.
package merger

import "github.com/markdave123-py/iatidocs/internal/models"

// Merged holds one canonical descriptor per URL plus the order in which
// URLs were first encountered.
type Merged struct {
	byURL map[string]*models.Descriptor
	order []string
}

// Merge flattens lists in order and groups by URL. Title, Date and Format
// keep the value of the first descriptor seen for a URL, even when that
// value is nil. Categories, Languages and Sources are unioned.
func Merge(lists [][]models.Descriptor) *Merged {
	m := &Merged{byURL: make(map[string]*models.Descriptor)}
	for _, list := range lists {
		for _, d := range list {
			m.add(d)
		}
	}
	return m
}

func (m *Merged) add(d models.Descriptor) {
	existing, ok := m.byURL[d.URL]
	if !ok {
		c := d.Clone()
		m.byURL[d.URL] = &c
		m.order = append(m.order, d.URL)
		return
	}
	existing.Categories.Union(d.Categories)
	existing.Languages.Union(d.Languages)
	existing.Sources.Union(d.Sources)
}

func (m *Merged) Len() int { return len(m.order) }

// Get returns a copy of the canonical descriptor for url.
func (m *Merged) Get(url string) (models.Descriptor, bool) {
	d, ok := m.byURL[url]
	if !ok {
		return models.Descriptor{}, false
	}
	return d.Clone(), true
}

// Ordered returns copies of the canonical descriptors in first-seen order.
func (m *Merged) Ordered() []models.Descriptor {
	out := make([]models.Descriptor, 0, len(m.order))
	for _, url := range m.order {
		out = append(out, m.byURL[url].Clone())
	}
	return out
}

// Map returns copies of the canonical descriptors keyed by URL.
func (m *Merged) Map() map[string]models.Descriptor {
	out := make(map[string]models.Descriptor, len(m.order))
	for url, d := range m.byURL {
		out[url] = d.Clone()
	}
	return out
}
