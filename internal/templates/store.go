package templates

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/fileutils"
	"github.com/conneroisu/casefiler/internal/logging"
	"github.com/google/uuid"
	"github.com/ubuntu/decorate"
)

// Source records where a template was loaded from.
type Source string

const (
	SourceSystem   Source = "system"
	SourceUser     Source = "user"
	SourceImported Source = "imported"
	SourceCustom   Source = "custom"
)

// DefaultBackupsKept is how many template backups survive CleanupBackups.
const DefaultBackupsKept = 10

const exportedBy = "casefiler"

// Info is a loaded template with its provenance.
type Info struct {
	ID       string    `json:"id" yaml:"id"`
	Template *Template `json:"template" yaml:"template"`
	Source   Source    `json:"source" yaml:"source"`
	FilePath string    `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Version  string    `json:"version" yaml:"version"`
}

// ImportResult describes a completed import.
type ImportResult struct {
	Imported   []string `json:"imported" yaml:"imported"`
	Issues     []Issue  `json:"issues" yaml:"issues"`
	SourceFile string   `json:"source_file" yaml:"source_file"`
	BackupPath string   `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
}

// Manager loads system and user templates and manages the user template
// directory layout:
//
//	<userDir>/*.json|yaml  user templates
//	<userDir>/imported/    one file per imported template
//	<userDir>/custom/      one file per hand-written template
//	<userDir>/backups/     snapshots taken before destructive changes
//	<userDir>/exported/    default export destination
type Manager struct {
	mu        sync.RWMutex
	userDir   string
	templates map[string]*Info
	validator *Validator
	logger    logging.Logger
	now       func() time.Time
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l logging.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l.WithComponent("templates") }
}

// WithManagerClock fixes the clock used for metadata and backup names.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates the user directory layout and loads every template.
func NewManager(userDir string, opts ...ManagerOption) (m *Manager, err error) {
	defer decorate.OnError(&err, "could not open template store %s", userDir)

	m = &Manager{
		userDir:   userDir,
		templates: make(map[string]*Info),
		validator: NewValidator(),
		logger:    logging.NopLogger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, dir := range m.Dirs() {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(m.dir("backups"), 0o750); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.dir("exported"), 0o750); err != nil {
		return nil, err
	}

	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) dir(name string) string { return filepath.Join(m.userDir, name) }

// Dirs lists the directories templates are loaded from, for watching.
func (m *Manager) Dirs() []string {
	return []string{m.userDir, m.dir("imported"), m.dir("custom")}
}

// UserDir returns the root of the user template directory.
func (m *Manager) UserDir() string { return m.userDir }

// Reload rereads every template from disk. Invalid user files are skipped
// with a warning; system templates cannot be shadowed.
func (m *Manager) Reload() error {
	loaded := make(map[string]*Info)

	sys := SystemDocument()
	for id, t := range sys.Templates {
		loaded[id] = &Info{ID: id, Template: t.Clone(), Source: SourceSystem, Version: sys.Version}
	}

	for _, src := range []struct {
		dir    string
		source Source
	}{
		{m.userDir, SourceUser},
		{m.dir("imported"), SourceImported},
		{m.dir("custom"), SourceCustom},
	} {
		files, err := templateFiles(src.dir)
		if err != nil {
			return fmt.Errorf("list %s: %w", src.dir, err)
		}
		for _, path := range files {
			report := m.validator.ValidateFile(path)
			if !report.Valid() {
				m.logger.Warn(context.Background(), report.Err(path), "skipping invalid template file", "path", path)
				continue
			}
			for _, id := range report.Document.IDs() {
				if prev, ok := loaded[id]; ok {
					m.logger.Warn(context.Background(), nil, "duplicate template id ignored",
						"id", id, "path", path, "kept", prev.Source)
					continue
				}
				loaded[id] = &Info{
					ID:       id,
					Template: report.Document.Templates[id],
					Source:   src.source,
					FilePath: path,
					Version:  report.Document.Version,
				}
			}
		}
	}

	m.mu.Lock()
	m.templates = loaded
	m.mu.Unlock()

	m.logger.Debug(context.Background(), "templates loaded", "count", len(loaded))
	return nil
}

func templateFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := FormatFromPath(e.Name()); err == nil {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

var sourceOrder = map[Source]int{SourceSystem: 0, SourceUser: 1, SourceImported: 2, SourceCustom: 3}

// All returns every template, system templates first, then by id.
func (m *Manager) All() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.templates))
	for _, info := range m.templates {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return sourceOrder[out[i].Source] < sourceOrder[out[j].Source]
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get looks up a template by id.
func (m *Manager) Get(id string) (*Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.templates[id]
	if !ok {
		return nil, errors.ErrTemplateNotFound(id)
	}
	cp := *info
	cp.Template = info.Template.Clone()
	return &cp, nil
}

// Builder returns a path builder for the template with the given id.
func (m *Manager) Builder(id string, opts ...BuilderOption) (*Builder, error) {
	info, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return NewBuilder(id, info.Template, opts...)
}

// Import validates a template file and installs each template it defines
// into imported/. An id that already exists is a conflict unless overwrite is
// set, in which case user templates are backed up first. System templates
// cannot be overwritten.
func (m *Manager) Import(path string, overwrite bool) (res *ImportResult, err error) {
	defer decorate.OnError(&err, "could not import templates from %s", path)

	report := m.validator.ValidateFile(path)
	if !report.Valid() {
		return nil, report.Err(path)
	}
	doc := report.Document

	var replaced []string
	for _, id := range doc.IDs() {
		existing, getErr := m.Get(id)
		if getErr != nil {
			continue
		}
		if existing.Source == SourceSystem {
			return nil, errors.NewValidationError(errors.ErrCodeTemplateReadOnly,
				fmt.Sprintf("template %q is built in and cannot be replaced", id))
		}
		if !overwrite {
			return nil, errors.NewValidationError(errors.ErrCodeTemplateConflict,
				fmt.Sprintf("template %q already exists", id)).
				WithUserMessage("A template with this id already exists. Re-run with --overwrite to replace it.")
		}
		replaced = append(replaced, id)
	}

	res = &ImportResult{SourceFile: path, Issues: report.Issues}
	if len(replaced) > 0 {
		backup, err := m.backup()
		if err != nil {
			return nil, err
		}
		res.BackupPath = backup
		for _, id := range replaced {
			if err := m.removeTemplate(id); err != nil {
				return nil, err
			}
		}
	}

	stamp := m.now().Format(time.RFC3339)
	for _, id := range doc.IDs() {
		t := doc.Templates[id].Clone()
		if t.Metadata == nil {
			t.Metadata = &Metadata{}
		}
		t.Metadata.ImportedFrom = truncateRunes(filepath.Base(path), MaxPatternLength)
		t.Metadata.ImportedDate = stamp

		single := &Document{Version: doc.Version, Templates: map[string]*Template{id: t}}
		data, err := EncodeDocument(single, FormatJSON)
		if err != nil {
			return nil, err
		}
		if err := fileutils.AtomicWrite(filepath.Join(m.dir("imported"), id+".json"), data); err != nil {
			return nil, err
		}
		res.Imported = append(res.Imported, id)
		m.logger.Info(context.Background(), "template imported", "id", id, "from", path)
	}

	if err := m.Reload(); err != nil {
		return nil, err
	}
	return res, nil
}

// Export writes a single template to dest, in JSON or YAML by extension.
func (m *Manager) Export(id, dest string) (err error) {
	defer decorate.OnError(&err, "could not export template %s", id)

	info, err := m.Get(id)
	if err != nil {
		return err
	}
	format, err := FormatFromPath(dest)
	if err != nil {
		return err
	}

	t := info.Template
	if t.Metadata == nil {
		t.Metadata = &Metadata{}
	}
	t.Metadata.ExportedDate = m.now().Format(time.RFC3339)
	t.Metadata.ExportedBy = exportedBy
	t.Metadata.OriginalSource = string(info.Source)

	data, err := EncodeDocument(&Document{Version: "1.0.0", Templates: map[string]*Template{id: t}}, format)
	if err != nil {
		return err
	}
	return fileutils.AtomicWrite(dest, data)
}

// ExportAll writes every non-system template into one document at dest and
// returns how many were exported.
func (m *Manager) ExportAll(dest string) (n int, err error) {
	defer decorate.OnError(&err, "could not export user templates")

	format, err := FormatFromPath(dest)
	if err != nil {
		return 0, err
	}
	doc := m.userDocument()
	if len(doc.Templates) == 0 {
		return 0, errors.NewValidationError(errors.ErrCodeTemplateNotFound, "no user templates to export")
	}

	doc.ExportMetadata.ExportType = "user_templates_export"
	data, err := EncodeDocument(doc, format)
	if err != nil {
		return 0, err
	}
	if err := fileutils.AtomicWrite(dest, data); err != nil {
		return 0, err
	}
	return len(doc.Templates), nil
}

func (m *Manager) userDocument() *Document {
	doc := &Document{
		Version:   "1.0.0",
		Templates: make(map[string]*Template),
	}
	for _, info := range m.All() {
		if info.Source != SourceSystem {
			doc.Templates[info.ID] = info.Template.Clone()
		}
	}
	doc.ExportMetadata = &ExportMetadata{
		ExportDate:    m.now().Format(time.RFC3339),
		ExportedBy:    exportedBy,
		TemplateCount: len(doc.Templates),
	}
	return doc
}

// Delete removes a user template after taking a backup. System templates are
// read-only.
func (m *Manager) Delete(id string) (err error) {
	defer decorate.OnError(&err, "could not delete template %s", id)

	info, err := m.Get(id)
	if err != nil {
		return err
	}
	if info.Source == SourceSystem {
		return errors.NewValidationError(errors.ErrCodeTemplateReadOnly,
			fmt.Sprintf("template %q is built in and cannot be deleted", id))
	}

	if _, err := m.backup(); err != nil {
		m.logger.Warn(context.Background(), err, "backup before delete failed", "id", id)
	}
	if err := m.removeTemplate(id); err != nil {
		return err
	}
	m.logger.Info(context.Background(), "template deleted", "id", id)
	return m.Reload()
}

// removeTemplate drops id from its file, deleting the file when it held no
// other template.
func (m *Manager) removeTemplate(id string) error {
	info, err := m.Get(id)
	if err != nil || info.FilePath == "" {
		return err
	}
	format, err := FormatFromPath(info.FilePath)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(info.FilePath)
	if err != nil {
		return err
	}
	doc, err := DecodeDocument(raw, format)
	if err != nil {
		return err
	}
	delete(doc.Templates, id)
	if len(doc.Templates) == 0 {
		return os.Remove(info.FilePath)
	}
	data, err := EncodeDocument(doc, format)
	if err != nil {
		return err
	}
	return fileutils.AtomicWrite(info.FilePath, data)
}

// backup snapshots all user templates into backups/ and prunes old
// snapshots. It returns "" when there is nothing to back up.
func (m *Manager) backup() (path string, err error) {
	defer decorate.OnError(&err, "could not back up user templates")

	doc := m.userDocument()
	if len(doc.Templates) == 0 {
		return "", nil
	}
	doc.ExportMetadata.ExportType = "user_templates_backup"

	data, err := EncodeDocument(doc, FormatJSON)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("templates_backup_%s_%s.json",
		m.now().Format("20060102_150405"), uuid.NewString()[:8])
	path = filepath.Join(m.dir("backups"), name)
	if err := fileutils.AtomicWrite(path, data); err != nil {
		return "", err
	}

	if _, err := m.CleanupBackups(DefaultBackupsKept); err != nil {
		m.logger.Warn(context.Background(), err, "backup cleanup failed")
	}
	return path, nil
}

// Backups lists backup files, oldest first.
func (m *Manager) Backups() ([]string, error) {
	entries, err := os.ReadDir(m.dir("backups"))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "templates_backup_") {
			out = append(out, filepath.Join(m.dir("backups"), e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// CleanupBackups keeps the newest keep backups and removes the rest.
func (m *Manager) CleanupBackups(keep int) (removed int, err error) {
	backups, err := m.Backups()
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	for len(backups) > keep {
		if err := os.Remove(backups[0]); err != nil {
			return removed, err
		}
		backups = backups[1:]
		removed++
	}
	return removed, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
