package archive

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/conneroisu/casefiler/internal/config"
	"github.com/conneroisu/casefiler/internal/errors"
)

// Level names the folder an archive was cut from.
const (
	LevelRoot     = "root"
	LevelLocation = "location"
	LevelDatetime = "datetime"
)

// Settings selects where archives are produced.
type Settings struct {
	CompressionLevel int
	AtRoot           bool
	AtLocation       bool
	AtDatetime       bool
	// OutputPath collects every archive in one directory instead of next to
	// the folder it was made from.
	OutputPath string
}

// SettingsFromConfig maps the archive configuration section.
func SettingsFromConfig(c config.ArchiveConfig) Settings {
	return Settings{
		CompressionLevel: c.CompressionLevel,
		AtRoot:           c.AtRoot,
		AtLocation:       c.AtLocation,
		AtDatetime:       c.AtDatetime,
		OutputPath:       c.OutputPath,
	}
}

// Enabled reports whether any archive level is selected.
func (s Settings) Enabled() bool {
	return s.AtRoot || s.AtLocation || s.AtDatetime
}

// CreateMultiLevel archives occurrenceDir and the folders below it named by
// relLevels (location, then datetime). Each archive is written next to the
// folder it packs unless OutputPath is set, in which case non-root archives
// get a level suffix to keep names distinct.
func CreateMultiLevel(ctx context.Context, occurrenceDir string, relLevels []string, s Settings, name string) ([]*Info, error) {
	if !s.Enabled() {
		return nil, nil
	}
	name = ensureZip(name)

	type target struct {
		level string
		dir   string
	}
	var targets []target
	if s.AtRoot {
		targets = append(targets, target{LevelRoot, occurrenceDir})
	}
	if s.AtLocation {
		if len(relLevels) < 1 {
			return nil, errors.NewArchiveError("template has no location level to archive", occurrenceDir, nil)
		}
		targets = append(targets, target{LevelLocation, filepath.Join(occurrenceDir, relLevels[0])})
	}
	if s.AtDatetime {
		if len(relLevels) < 2 {
			return nil, errors.NewArchiveError("template has no datetime level to archive", occurrenceDir, nil)
		}
		targets = append(targets, target{LevelDatetime, filepath.Join(occurrenceDir, relLevels[0], relLevels[1])})
	}

	var out []*Info
	for _, t := range targets {
		zipPath := filepath.Join(filepath.Dir(t.dir), name)
		if s.OutputPath != "" {
			n := name
			if t.level != LevelRoot {
				n = strings.TrimSuffix(name, filepath.Ext(name)) + "_" + t.level + ".zip"
			}
			zipPath = filepath.Join(s.OutputPath, n)
		}

		info, err := CreateArchive(ctx, t.dir, zipPath, s.CompressionLevel)
		if err != nil {
			return out, err
		}
		info.Level = t.level
		out = append(out, info)
	}
	return out, nil
}
