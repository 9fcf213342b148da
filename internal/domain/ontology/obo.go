package ontology

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

const scannerBufferSize = 1 << 20 // 1 MB

// Header carries the OBO document header fields of interest.
type Header struct {
	FormatVersion string `json:"format_version,omitempty"`
	DataVersion   string `json:"data_version,omitempty"`
	Ontology      string `json:"ontology,omitempty"`
}

// internPool avoids duplicate string allocations for repeated values.
type internPool struct {
	m map[string]string
}

func newInternPool() *internPool {
	return &internPool{m: make(map[string]string, 64)}
}

func (p *internPool) get(s string) string {
	if v, ok := p.m[s]; ok {
		return v
	}
	p.m[s] = s
	return s
}

// ParseOBO reads an OBO 1.2/1.4 document. Obsolete terms are skipped and all
// ids are normalized with NormalizeID.
func ParseOBO(r io.Reader, equivalenceTypes ...string) (*Ontology, Header, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, scannerBufferSize), scannerBufferSize)

	var hdr Header
	onto := New(equivalenceTypes...)
	pool := newInternPool()
	inHeader := true

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inHeader = false
			if line == "[Term]" {
				if t := parseTerm(scanner, pool); t.ID != "" && !t.Obsolete {
					onto.AddTerm(t)
				}
			}
			continue
		}
		if inHeader {
			parseHeaderLine(&hdr, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, hdr, errors.Wrap(err, errors.ErrCodeOntologyParse, "failed to read OBO document")
	}
	if onto.Len() == 0 {
		return nil, hdr, errors.New(errors.ErrCodeOntologyEmpty, "OBO document contains no terms")
	}
	return onto, hdr, nil
}

// LoadOBOFile opens and parses an OBO file.
func LoadOBOFile(path string, equivalenceTypes ...string) (*Ontology, Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Header{}, errors.Wrap(err, errors.ErrCodeOntologyParse, "failed to open ontology file").WithDetail(path)
	}
	defer f.Close()
	return ParseOBO(f, equivalenceTypes...)
}

func parseHeaderLine(hdr *Header, line string) {
	key, val, ok := strings.Cut(line, ": ")
	if !ok {
		return
	}
	switch key {
	case "format-version":
		hdr.FormatVersion = val
	case "data-version":
		hdr.DataVersion = val
	case "ontology":
		hdr.Ontology = val
	}
}

func parseTerm(scanner *bufio.Scanner, pool *internPool) *Term {
	t := &Term{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}
		key, val, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch key {
		case "id":
			t.ID = NormalizeID(val)
		case "name":
			t.Name = val
		case "alt_id":
			t.AltIDs = append(t.AltIDs, NormalizeID(stripComment(val)))
		case "is_a":
			t.Parents = append(t.Parents, NormalizeID(stripComment(val)))
		case "relationship":
			if rel, ok := parseRelationship(val, pool); ok {
				t.Relationships = append(t.Relationships, rel)
			}
		case "is_obsolete":
			t.Obsolete = val == "true"
		}
	}
	return t
}

// stripComment drops the trailing "! name" and any qualifier block.
func stripComment(val string) string {
	v, _, _ := strings.Cut(val, " ! ")
	v, _, _ = strings.Cut(v, " {")
	return strings.TrimSpace(v)
}

// parseRelationship parses: "type CHEBI:12345 ! name"
func parseRelationship(val string, pool *internPool) (Relationship, bool) {
	typ, target, ok := strings.Cut(stripComment(val), " ")
	if !ok {
		return Relationship{}, false
	}
	return Relationship{Type: pool.get(typ), TargetID: NormalizeID(target)}, true
}
