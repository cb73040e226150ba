package model

// FieldSpec describes one form field a factory asks for.
type FieldSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Default     string `json:"__default__,omitempty"`
	Format      string `json:"__format__,omitempty"`
}

const FieldFormatEmail = "email"

// Factory is loaded from <factoriesDir>/<id>/desc.json.
type Factory struct {
	UUID               string      `json:"uuid"`
	Name               string      `json:"name"`
	Description        string      `json:"description"`
	UploadInstructions string      `json:"upload_instructions"`
	CoverImage         string      `json:"cover_image"`
	AcceptedFileTypes  string      `json:"accepted_file_types,omitempty"`
	Fields             []FieldSpec `json:"fields,omitempty"`
}

// AcceptedTypes returns the accept filter, "*" when none is configured.
func (f *Factory) AcceptedTypes() string {
	if f.AcceptedFileTypes == "" {
		return "*"
	}
	return f.AcceptedFileTypes
}
