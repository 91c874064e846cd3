// Package batch queues recovery jobs, persists the queue with crash-recovery
// autosaves, and runs each job through copy, verification, reporting and
// archiving.
package batch

import (
	"os"
	"strings"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/forms"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// JobResult records what a finished job produced.
type JobResult struct {
	DestinationPath string   `json:"destination_path"`
	FileCount       int      `json:"file_count"`
	VerifiedCount   int      `json:"verified_count"`
	BytesCopied     int64    `json:"bytes_copied"`
	ArchivePaths    []string `json:"archive_paths,omitempty"`
	ReportPaths     []string `json:"report_paths,omitempty"`
	UploadedObjects []string `json:"uploaded_objects,omitempty"`
}

// Job is one recovery: the case form plus the files and folders to copy.
type Job struct {
	ID         string          `json:"job_id"`
	Name       string          `json:"job_name"`
	Form       *forms.FormData `json:"form_data"`
	Files      []string        `json:"files"`
	Folders    []string        `json:"folders"`
	OutputDir  string          `json:"output_directory"`
	TemplateID string          `json:"template_id,omitempty"`

	Status    Status     `json:"status"`
	Error     string     `json:"error_message,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Result    *JobResult `json:"result,omitempty"`
}

// NewJob returns a pending job with a fresh id. An empty name is derived
// from the occurrence number.
func NewJob(name string, form *forms.FormData, files, folders []string, outputDir string) *Job {
	if strings.TrimSpace(name) == "" && form != nil {
		name = "Job " + strings.TrimSpace(form.OccurrenceNumber)
	}
	return &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Form:      form,
		Files:     files,
		Folders:   folders,
		OutputDir: outputDir,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// Sources returns files followed by folders.
func (j *Job) Sources() []string {
	out := make([]string, 0, len(j.Files)+len(j.Folders))
	out = append(out, j.Files...)
	return append(out, j.Folders...)
}

// Duration is the processing time of a finished job, or zero.
func (j *Job) Duration() time.Duration {
	if j.StartTime == nil || j.EndTime == nil {
		return 0
	}
	return j.EndTime.Sub(*j.StartTime)
}

// Validate checks the form, that sources exist, and that an output
// directory is set. All problems are reported together.
func (j *Job) Validate() error {
	vec := &errors.ValidationErrorCollection{}

	if j.Form == nil {
		vec.AddField("form_data", nil, "is required")
	} else if err := j.Form.Validate(); err != nil {
		var formErrs *errors.ValidationErrorCollection
		if errors.As(err, &formErrs) {
			for _, e := range formErrs.Errors {
				vec.Add(e)
			}
		} else {
			vec.AddField("form_data", nil, err.Error())
		}
	}

	if len(j.Files) == 0 && len(j.Folders) == 0 {
		vec.AddField("files", nil, "at least one file or folder is required")
	}
	for _, f := range j.Files {
		if info, err := os.Stat(f); err != nil || info.IsDir() {
			vec.AddField("files", f, "source file does not exist")
		}
	}
	for _, d := range j.Folders {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			vec.AddField("folders", d, "source folder does not exist")
		}
	}

	if strings.TrimSpace(j.OutputDir) == "" {
		vec.AddField("output_directory", "", "is required")
	}

	if vec.HasErrors() {
		return vec
	}
	return nil
}

// Clone returns a copy that shares no mutable state with j.
func (j *Job) Clone() *Job {
	c := *j
	if j.Form != nil {
		f := *j.Form
		c.Form = &f
	}
	c.Files = append([]string(nil), j.Files...)
	c.Folders = append([]string(nil), j.Folders...)
	if j.StartTime != nil {
		t := *j.StartTime
		c.StartTime = &t
	}
	if j.EndTime != nil {
		t := *j.EndTime
		c.EndTime = &t
	}
	if j.Result != nil {
		r := *j.Result
		r.ArchivePaths = append([]string(nil), j.Result.ArchivePaths...)
		r.ReportPaths = append([]string(nil), j.Result.ReportPaths...)
		r.UploadedObjects = append([]string(nil), j.Result.UploadedObjects...)
		c.Result = &r
	}
	return &c
}

// resetRun clears the outcome of a previous attempt.
func (j *Job) resetRun() {
	j.Status = StatusPending
	j.Error = ""
	j.StartTime = nil
	j.EndTime = nil
	j.Result = nil
}
