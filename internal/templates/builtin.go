package templates

import (
	_ "embed"
	"sync"
)

// DefaultTemplateID is the template used when none is configured.
const DefaultTemplateID = "default_forensic"

//go:embed builtin/system.json
var systemTemplates []byte

var (
	systemOnce sync.Once
	systemDoc  *Document
)

// SystemDocument returns the built-in templates. It panics if the embedded
// document is malformed, which the package tests guard against.
func SystemDocument() *Document {
	systemOnce.Do(func() {
		doc, err := DecodeDocument(systemTemplates, FormatJSON)
		if err != nil {
			panic("templates: embedded system templates: " + err.Error())
		}
		systemDoc = doc
	})
	return systemDoc
}

// SystemTemplate returns a copy of a built-in template.
func SystemTemplate(id string) (*Template, bool) {
	t, ok := SystemDocument().Templates[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}
