package bids

import (
	"bufio"
	"bytes"
	"sort"
	"strings"

	"github.com/jmgilman/go/fs/core"

	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/filespec"
	"github.com/kleenlab/ucsfbids/sidecar"
)

// ParticipantID is the key column of participants.tsv.
const ParticipantID = "participant_id"

// Participants is the participants.tsv table.
type Participants struct {
	Columns []string
	Rows    []map[string]string
}

// NewParticipants returns a table with only the participant_id column.
func NewParticipants() *Participants {
	return &Participants{Columns: []string{ParticipantID}}
}

// DefaultParticipantsSidecar describes the participant_id column.
func DefaultParticipantsSidecar() *sidecar.Document {
	return sidecar.FromPairs(ParticipantID, sidecar.FromPairs(
		"Description", "Unique participant identifier",
	))
}

// ReadParticipants reads a participants table. A missing file yields an
// empty table.
func ReadParticipants(fsys core.FS, path string) (*Participants, error) {
	exists, err := fsys.Exists(path)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeIO, "failed to stat participants table", map[string]interface{}{"path": path})
	}
	if !exists {
		return NewParticipants(), nil
	}
	rows, err := filespec.ReadTable(filespec.Location{FS: fsys, Path: path})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return NewParticipants(), nil
	}

	p := &Participants{Columns: rows[0]}
	hasID := false
	for _, c := range p.Columns {
		if c == ParticipantID {
			hasID = true
		}
	}
	if !hasID {
		return nil, errors.NewWithContext(errors.CodeMetadataInvalid, "participants table has no participant_id column", map[string]interface{}{"path": path})
	}
	for _, rec := range rows[1:] {
		row := make(map[string]string, len(p.Columns))
		for i, c := range p.Columns {
			if i < len(rec) {
				row[c] = rec[i]
			}
		}
		p.Rows = append(p.Rows, row)
	}
	return p, nil
}

// IDs returns the participant ids in table order.
func (p *Participants) IDs() []string {
	ids := make([]string, 0, len(p.Rows))
	for _, r := range p.Rows {
		ids = append(ids, r[ParticipantID])
	}
	return ids
}

// Upsert adds a row for id or updates its values. Unknown columns are
// appended.
func (p *Participants) Upsert(id string, values map[string]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k != ParticipantID && !p.hasColumn(k) {
			p.Columns = append(p.Columns, k)
		}
	}
	for _, r := range p.Rows {
		if r[ParticipantID] == id {
			for k, v := range values {
				if k != ParticipantID {
					r[k] = v
				}
			}
			return
		}
	}
	row := map[string]string{ParticipantID: id}
	for k, v := range values {
		if k != ParticipantID {
			row[k] = v
		}
	}
	p.Rows = append(p.Rows, row)
}

// Rename replaces participant ids found in renames. Rows not mentioned
// keep their id.
func (p *Participants) Rename(renames map[string]string) {
	for _, r := range p.Rows {
		if to, ok := renames[r[ParticipantID]]; ok {
			r[ParticipantID] = to
		}
	}
}

// Select keeps the rows whose id is a key of renames and gives them the
// mapped id. Kept rows stay in table order.
func (p *Participants) Select(renames map[string]string) {
	kept := p.Rows[:0]
	for _, r := range p.Rows {
		if to, ok := renames[r[ParticipantID]]; ok {
			r[ParticipantID] = to
			kept = append(kept, r)
		}
	}
	p.Rows = kept
}

func (p *Participants) hasColumn(name string) bool {
	for _, c := range p.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Write stores the table. Missing cells are written as n/a.
func (p *Participants) Write(fsys core.FS, path string) error {
	rows := make([][]string, 0, len(p.Rows)+1)
	rows = append(rows, p.Columns)
	for _, r := range p.Rows {
		rec := make([]string, len(p.Columns))
		for i, c := range p.Columns {
			v, ok := r[c]
			if !ok || v == "" {
				v = filespec.NotApplicable
			}
			rec[i] = v
		}
		rows = append(rows, rec)
	}
	return filespec.WriteTable(filespec.Location{FS: fsys, Path: path}, rows)
}

// readLines returns the non-empty lines of a text file; a missing file has
// none.
func readLines(fsys core.FS, path string) ([]string, error) {
	exists, err := fsys.Exists(path)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeIO, "failed to stat file", map[string]interface{}{"path": path})
	}
	if !exists {
		return nil, nil
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeIO, "failed to read file", map[string]interface{}{"path": path})
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func writeLines(fsys core.FS, path string, lines []string) error {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to write file", map[string]interface{}{"path": path})
	}
	return nil
}
