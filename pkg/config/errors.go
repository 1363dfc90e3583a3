package config

import (
	"strings"
)

// Field names a setting that failed validation.
type Field string

const (
	FieldSameDomainDelay Field = "sameDomainDelay"
	FieldOutputFolder    Field = "outputFolder"
	FieldParallel        Field = "parallel"
	FieldThreshold       Field = "threshold"
	FieldTimeout         Field = "timeout"
	FieldViewportHeight  Field = "viewportHeight"
	FieldViewportWidth   Field = "viewportWidth"
	FieldWait            Field = "wait"
	FieldURLs            Field = "urls"
	FieldFolder          Field = "folder"
)

// ValidationError lists every setting that failed validation.
type ValidationError struct {
	Fields []Field
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return "invalid settings: " + strings.Join(names, ", ")
}

// Has reports whether f failed validation.
func (e *ValidationError) Has(f Field) bool {
	for _, field := range e.Fields {
		if field == f {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(f Field) {
	if !e.Has(f) {
		e.Fields = append(e.Fields, f)
	}
}
