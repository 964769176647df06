package fs

import (
	"bytes"
	"os"
	"sort"

	"github.com/magiconair/properties"
	"github.com/pkg/errors"

	"github.com/bft-labs/propship/internal/domain"
)

// PropertiesReader implements ports.EntryReader for .properties files.
type PropertiesReader struct{}

// NewPropertiesReader creates a new PropertiesReader.
func NewPropertiesReader() *PropertiesReader {
	return &PropertiesReader{}
}

// ReadEntries loads every key of the file at path. ${...} references are
// kept literally.
func (PropertiesReader) ReadEntries(path string) (domain.EntrySet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	entries, err := parseProperties(b)
	return entries, errors.Wrapf(err, "parsing %s", path)
}

func parseProperties(b []byte) (domain.EntrySet, error) {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadBytes(b)
	if err != nil {
		return nil, err
	}
	out := make(domain.EntrySet, p.Len())
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		out[k] = v
	}
	return out, nil
}

// encodeProperties renders entries in key order behind a one-line comment.
func encodeProperties(entries domain.EntrySet, comment string) ([]byte, error) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := properties.NewProperties()
	p.DisableExpansion = true
	for _, k := range keys {
		if _, _, err := p.Set(k, entries[k]); err != nil {
			return nil, errors.Wrapf(err, "setting %s", k)
		}
	}

	var buf bytes.Buffer
	if comment != "" {
		buf.WriteString("# " + comment + "\n")
	}
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return nil, errors.Wrap(err, "encoding properties")
	}
	return buf.Bytes(), nil
}
