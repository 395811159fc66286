// Package ingest persists parsed chamber-days and drives date-range runs
// against the Oireachtas API.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Napageneral/dailwatch/internal/bus"
	"github.com/Napageneral/dailwatch/internal/ident"
	"github.com/Napageneral/dailwatch/internal/tasks"
	"github.com/Napageneral/dailwatch/internal/transcript"
)

const (
	DefaultSectionBatch = 250
	DefaultSpeechBatch  = 500
)

// DayInput is one parsed chamber-day ready to persist.
type DayInput struct {
	Chamber   string
	Date      string
	Title     string
	SourceURI string
	Document  *transcript.Document
}

// DayResult reports what SyncDay wrote.
type DayResult struct {
	DayID          string            `json:"day_id"`
	Sections       int               `json:"sections"`
	SectionsReused int               `json:"sections_reused"`
	Speeches       int               `json:"speeches"`
	SpeechesReused int               `json:"speeches_reused"`
	Words          int               `json:"words"`
	Tasks          tasks.EnsureStats `json:"tasks"`
}

// Syncer upserts chamber-days. It is safe to call repeatedly with the same
// input: ids are stable and every write is keyed on them.
type Syncer struct {
	DB           *sql.DB
	SectionBatch int
	SpeechBatch  int
}

func NewSyncer(db *sql.DB) *Syncer {
	return &Syncer{DB: db, SectionBatch: DefaultSectionBatch, SpeechBatch: DefaultSpeechBatch}
}

type sectionRow struct {
	id       string
	parentID string
	code     string
	path     string
	order    int
	reused   bool
	section  *transcript.Section
	words    int
}

type speechRow struct {
	id        string
	sectionID string
	order     int
	reused    bool
	speech    transcript.Speech
	words     int
}

// SyncDay persists in. A storage error aborts the rest of this day; batches
// committed before the error stay committed.
func (s *Syncer) SyncDay(ctx context.Context, in DayInput) (*DayResult, error) {
	if s.DB == nil {
		return nil, fmt.Errorf("sync day: no database configured")
	}
	if strings.TrimSpace(in.Chamber) == "" || strings.TrimSpace(in.Date) == "" {
		return nil, fmt.Errorf("sync day: chamber and date are required")
	}
	doc := in.Document
	if doc == nil {
		doc = &transcript.Document{}
	}

	dayID, err := s.upsertDay(ctx, in)
	if err != nil {
		return nil, err
	}
	res := &DayResult{DayID: dayID}

	existing, err := s.existingSections(ctx, dayID)
	if err != nil {
		return nil, err
	}

	sections := flatten(dayID, doc, existing)
	if err := s.upsertSections(ctx, dayID, sections); err != nil {
		return nil, err
	}

	speeches, err := s.buildSpeeches(ctx, sections)
	if err != nil {
		return nil, err
	}
	if err := s.upsertSpeeches(ctx, speeches); err != nil {
		return nil, err
	}

	for _, sec := range sections {
		res.Sections++
		if sec.reused {
			res.SectionsReused++
		}
		res.Words += sec.words
	}
	for _, sp := range speeches {
		res.Speeches++
		if sp.reused {
			res.SpeechesReused++
		}
	}

	if _, err := s.DB.ExecContext(ctx, `
		UPDATE debate_days SET section_count = ?, speech_count = ?, word_count = ?, updated_at = ?
		WHERE id = ?
	`, res.Sections, res.Speeches, res.Words, time.Now().Unix(), dayID); err != nil {
		return nil, fmt.Errorf("update day counts: %w", err)
	}

	stats, err := tasks.EnsureForSections(ctx, s.DB, tasks.TypeSectionSummary, summaryCandidates(in, sections))
	if err != nil {
		return nil, fmt.Errorf("ensure summary tasks: %w", err)
	}
	res.Tasks = stats

	if err := bus.Emit(ctx, s.DB, bus.TypeDayIngested, in.Chamber, dayID, map[string]any{
		"date":           in.Date,
		"sections":       res.Sections,
		"speeches":       res.Speeches,
		"words":          res.Words,
		"tasks_enqueued": stats.Enqueued,
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Syncer) upsertDay(ctx context.Context, in DayInput) (string, error) {
	now := time.Now().Unix()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO debate_days (id, chamber, date, title, source_uri, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chamber, date, source_uri) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at
	`, ident.DayID(in.Chamber, in.Date, in.SourceURI), in.Chamber, in.Date, in.Title, in.SourceURI, now, now)
	if err != nil {
		return "", fmt.Errorf("upsert day %s %s: %w", in.Chamber, in.Date, err)
	}

	var id string
	if err := s.DB.QueryRowContext(ctx, `
		SELECT id FROM debate_days WHERE chamber = ? AND date = ? AND source_uri = ?
	`, in.Chamber, in.Date, in.SourceURI).Scan(&id); err != nil {
		return "", fmt.Errorf("read back day id: %w", err)
	}
	return id, nil
}

func (s *Syncer) existingSections(ctx context.Context, dayID string) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT section_code, id FROM debate_sections
		WHERE day_id = ? AND section_code IS NOT NULL AND section_code <> ''
		ORDER BY order_index
	`, dayID)
	if err != nil {
		return nil, fmt.Errorf("load existing sections: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var code, id string
		if err := rows.Scan(&code, &id); err != nil {
			return nil, fmt.Errorf("scan existing section: %w", err)
		}
		if _, ok := out[code]; !ok {
			out[code] = id
		}
	}
	return out, rows.Err()
}

// flatten walks the tree depth-first, parents before children, assigning ids.
func flatten(dayID string, doc *transcript.Document, existing map[string]string) []sectionRow {
	assigner := ident.NewAssigner(dayID, existing)
	seen := make(map[string]bool)
	var out []sectionRow

	var walk func(list []*transcript.Section, parentID, parentPath string)
	walk = func(list []*transcript.Section, parentID, parentPath string) {
		for i, sec := range list {
			path := ident.JoinPath(parentPath, ident.Segment(sec.Code, i))
			id, reused := assigner.SectionID(path, sec.Code)
			if seen[id] {
				// Same code twice under one parent: the path repeats, so the
				// sibling position disambiguates.
				id = ident.Derive("section", dayID, fmt.Sprintf("%s#%d", path, i))
				reused = false
			}
			seen[id] = true

			words := 0
			for _, sp := range sec.Speeches {
				words += transcript.CountWords(sp.Paragraphs)
			}
			out = append(out, sectionRow{
				id:       id,
				parentID: parentID,
				code:     sec.Code,
				path:     path,
				order:    len(out),
				reused:   reused,
				section:  sec,
				words:    words,
			})
			walk(sec.Subsections, id, path)
		}
	}
	walk(doc.Sections, "", "")
	return out
}

func sectionMetadata(sec *transcript.Section) (*string, error) {
	meta := map[string]any{}
	if sec.RawDebateType != "" {
		meta["raw_debate_type"] = sec.RawDebateType
	}
	if sec.ParentCode != "" {
		meta["parent_code"] = sec.ParentCode
	}
	if q := sec.Question; q != nil {
		meta["question"] = map[string]any{
			"code":           q.Code,
			"asker_ref":      q.AskerRef,
			"asker_name":     q.AskerName,
			"addressee_ref":  q.AddresseeRef,
			"addressee_name": q.AddresseeName,
			"recorded_time":  q.RecordedTime,
			"text":           q.Text,
		}
	}
	return marshalMeta(meta)
}

func marshalMeta(meta map[string]any) (*string, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	str := string(b)
	return &str, nil
}

func (s *Syncer) upsertSections(ctx context.Context, dayID string, rows []sectionRow) error {
	batch := s.SectionBatch
	if batch <= 0 {
		batch = DefaultSectionBatch
	}
	for start := 0; start < len(rows); start += batch {
		end := start + batch
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.writeSectionBatch(ctx, dayID, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) writeSectionBatch(ctx context.Context, dayID string, rows []sectionRow) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin section batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO debate_sections (
			id, day_id, section_code, title, debate_type, recorded_time, parent_id,
			contains_debate, speech_count, word_count, order_index, source_path, metadata_json,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			section_code = excluded.section_code,
			title = excluded.title,
			debate_type = excluded.debate_type,
			recorded_time = excluded.recorded_time,
			parent_id = excluded.parent_id,
			contains_debate = excluded.contains_debate,
			speech_count = excluded.speech_count,
			word_count = excluded.word_count,
			order_index = excluded.order_index,
			source_path = excluded.source_path,
			metadata_json = excluded.metadata_json,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare section upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range rows {
		meta, err := sectionMetadata(r.section)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.id, dayID, nullString(r.code), r.section.Title, r.section.DebateType,
			nullString(r.section.RecordedTime), nullString(r.parentID),
			boolInt(r.section.ContainsDebate), len(r.section.Speeches), r.words, r.order, r.path, meta,
			now, now,
		); err != nil {
			return fmt.Errorf("upsert section %s: %w", r.path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit section batch: %w", err)
	}
	return nil
}

// buildSpeeches assigns speech ids, reusing stored ids for sections that
// existed before this run.
func (s *Syncer) buildSpeeches(ctx context.Context, sections []sectionRow) ([]speechRow, error) {
	var reusedIDs []string
	for _, sec := range sections {
		if sec.reused {
			reusedIDs = append(reusedIDs, sec.id)
		}
	}
	existing, err := s.existingSpeeches(ctx, reusedIDs)
	if err != nil {
		return nil, err
	}

	var out []speechRow
	for _, sec := range sections {
		known := existing[sec.id]
		seen := make(map[string]bool)
		claimed := make(map[string]bool)
		for i, sp := range sec.section.Speeches {
			// Only the first speech with a code may take its stored id.
			code := strings.TrimSpace(sp.Code)
			stored := known
			if code != "" && claimed[code] {
				stored = nil
			}
			claimed[code] = true
			id, reused := ident.SpeechID(sec.id, sp.Code, i, stored)
			if seen[id] {
				id = ident.Derive("speech", sec.id, fmt.Sprintf("%s#%d", ident.Segment(sp.Code, i), i))
				reused = false
			}
			seen[id] = true
			out = append(out, speechRow{
				id:        id,
				sectionID: sec.id,
				order:     i,
				reused:    reused,
				speech:    sp,
				words:     transcript.CountWords(sp.Paragraphs),
			})
		}
	}
	return out, nil
}

func (s *Syncer) existingSpeeches(ctx context.Context, sectionIDs []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	const chunk = 400
	for start := 0; start < len(sectionIDs); start += chunk {
		end := start + chunk
		if end > len(sectionIDs) {
			end = len(sectionIDs)
		}
		ids := sectionIDs[start:end]
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		rows, err := s.DB.QueryContext(ctx, `
			SELECT section_id, speech_code, id FROM speeches
			WHERE speech_code IS NOT NULL AND speech_code <> ''
			AND section_id IN (`+strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")+`)
			ORDER BY section_id, order_index
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("load existing speeches: %w", err)
		}
		for rows.Next() {
			var sectionID, code, id string
			if err := rows.Scan(&sectionID, &code, &id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan existing speech: %w", err)
			}
			m := out[sectionID]
			if m == nil {
				m = make(map[string]string)
				out[sectionID] = m
			}
			if _, ok := m[code]; !ok {
				m[code] = id
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate existing speeches: %w", err)
		}
	}
	return out, nil
}

func speechMetadata(sp transcript.Speech) (*string, error) {
	meta := map[string]any{"paragraph_count": len(sp.Paragraphs)}
	if sp.SpeakerURI != "" {
		meta["speaker_uri"] = sp.SpeakerURI
	}
	if sp.RoleRef != "" {
		meta["role_ref"] = sp.RoleRef
	}
	if sp.RoleURI != "" {
		meta["role_uri"] = sp.RoleURI
	}
	if sp.SpeakerLabel != "" {
		meta["speaker_label"] = sp.SpeakerLabel
	}
	return marshalMeta(meta)
}

func (s *Syncer) upsertSpeeches(ctx context.Context, rows []speechRow) error {
	batch := s.SpeechBatch
	if batch <= 0 {
		batch = DefaultSpeechBatch
	}
	for start := 0; start < len(rows); start += batch {
		end := start + batch
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.writeSpeechBatch(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) writeSpeechBatch(ctx context.Context, rows []speechRow) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin speech batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO speeches (
			id, section_id, speech_code, speaker_ref, speaker_name, speaker_role, recorded_time,
			paragraphs_json, word_count, order_index, metadata_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			speech_code = excluded.speech_code,
			speaker_ref = excluded.speaker_ref,
			speaker_name = excluded.speaker_name,
			speaker_role = excluded.speaker_role,
			recorded_time = excluded.recorded_time,
			paragraphs_json = excluded.paragraphs_json,
			word_count = excluded.word_count,
			order_index = excluded.order_index,
			metadata_json = excluded.metadata_json,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare speech upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range rows {
		paragraphs := r.speech.Paragraphs
		if paragraphs == nil {
			paragraphs = []string{}
		}
		pj, err := json.Marshal(paragraphs)
		if err != nil {
			return fmt.Errorf("marshal paragraphs: %w", err)
		}
		meta, err := speechMetadata(r.speech)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.id, r.sectionID, nullString(r.speech.Code), nullString(r.speech.SpeakerRef),
			nullString(r.speech.SpeakerName), nullString(r.speech.RoleName), nullString(r.speech.RecordedTime),
			string(pj), r.words, r.order, meta, now, now,
		); err != nil {
			return fmt.Errorf("upsert speech %s: %w", r.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit speech batch: %w", err)
	}
	return nil
}

func summaryCandidates(in DayInput, sections []sectionRow) []tasks.Candidate {
	var out []tasks.Candidate
	for _, sec := range sections {
		if !sec.section.ContainsDebate || sec.words <= 0 {
			continue
		}
		out = append(out, tasks.Candidate{
			SectionID: sec.id,
			Priority:  sec.words,
			Payload: map[string]any{
				"chamber": in.Chamber,
				"date":    in.Date,
				"title":   sec.section.Title,
				"path":    sec.path,
			},
		})
	}
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
