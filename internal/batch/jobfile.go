package batch

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/forms"
	"gopkg.in/yaml.v3"
)

// JobFile is the on-disk description of a job dropped into a hot folder or
// passed to "batch add --job-file".
type JobFile struct {
	Name       string         `json:"job_name,omitempty" yaml:"job_name,omitempty" toml:"job_name"`
	TemplateID string         `json:"template_id,omitempty" yaml:"template_id,omitempty" toml:"template_id"`
	OutputDir  string         `json:"output_directory" yaml:"output_directory" toml:"output_directory"`
	Files      []string       `json:"files,omitempty" yaml:"files,omitempty" toml:"files"`
	Folders    []string       `json:"folders,omitempty" yaml:"folders,omitempty" toml:"folders"`
	Form       forms.FormData `json:"form_data" yaml:"form_data" toml:"form_data"`
}

// LoadJobFile reads a job description. Relative source and output paths are
// resolved against the directory holding the file.
func LoadJobFile(path string) (*Job, error) {
	format, err := forms.FormatFromPath(path)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeValidationFailed, err.Error()).WithPath(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFile(err, "read job file", path)
	}

	var jf JobFile
	switch format {
	case forms.FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&jf)
	case forms.FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&jf)
	case forms.FormatTOML:
		var md toml.MetaData
		md, err = toml.Decode(string(data), &jf)
		if err == nil {
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				err = errors.New("unknown field " + undecoded[0].String())
			}
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.ErrCodeValidationFailed,
			"invalid job file").WithPath(path)
	}

	base := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for i := range jf.Files {
		jf.Files[i] = resolve(jf.Files[i])
	}
	for i := range jf.Folders {
		jf.Folders[i] = resolve(jf.Folders[i])
	}

	form := jf.Form
	job := NewJob(jf.Name, &form, jf.Files, jf.Folders, resolve(jf.OutputDir))
	job.TemplateID = jf.TemplateID
	return job, nil
}
