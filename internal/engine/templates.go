package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasttemplate"

	"sd-address-tools/internal/model"
)

const (
	TmplAddress = "address"
	TmplSlug    = "slug"
	TmplType    = "type"
	TmplDate    = "date"

	DefaultNameTemplate        = "BL-{{slug}}"
	DefaultDescriptionTemplate = "Blocklist entry added {{date}}"

	dateLayout = "02Jan2006"
)

var slugReplacer = strings.NewReplacer("/", "_", ":", ".")

// ObjectTemplates renders names and descriptions for new address objects.
type ObjectTemplates struct {
	name        *fasttemplate.Template
	description *fasttemplate.Template
	date        string
}

func NewObjectTemplates(name, description string, now time.Time) (*ObjectTemplates, error) {
	if name == "" {
		name = DefaultNameTemplate
	}
	if description == "" {
		description = DefaultDescriptionTemplate
	}

	nameTmpl, err := fasttemplate.NewTemplate(name, "{{", "}}")
	if err != nil {
		return nil, fmt.Errorf("invalid name template: %w", err)
	}
	descTmpl, err := fasttemplate.NewTemplate(description, "{{", "}}")
	if err != nil {
		return nil, fmt.Errorf("invalid description template: %w", err)
	}

	return &ObjectTemplates{
		name:        nameTmpl,
		description: descTmpl,
		date:        now.Format(dateLayout),
	}, nil
}

// MustNewObjectTemplates is like NewObjectTemplates but panics on an invalid
// template. It is meant for templates known at compile time.
func MustNewObjectTemplates(name, description string, now time.Time) *ObjectTemplates {
	t, err := NewObjectTemplates(name, description, now)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *ObjectTemplates) values(entry model.AddressEntry) map[string]interface{} {
	return map[string]interface{}{
		TmplAddress: entry.Value(),
		TmplSlug:    slugReplacer.Replace(entry.Value()),
		TmplType:    string(entry.Type),
		TmplDate:    t.date,
	}
}

func (t *ObjectTemplates) Name(entry model.AddressEntry) string {
	return t.name.ExecuteString(t.values(entry))
}

func (t *ObjectTemplates) Description(entry model.AddressEntry) string {
	return t.description.ExecuteString(t.values(entry))
}
