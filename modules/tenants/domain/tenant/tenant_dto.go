package tenant

import (
	"encoding/json"
	"strings"

	"github.com/iota-uz/tenantkit/pkg/constants"
	"github.com/iota-uz/tenantkit/pkg/serrors"
)

type ProvisionDTO struct {
	Slug     string          `json:"slug" validate:"required,min=2,max=63"`
	Name     string          `json:"name" validate:"max=200"`
	Settings json.RawMessage `json:"settings"`
}

func (d *ProvisionDTO) Normalize() {
	d.Slug = NormalizeSlug(d.Slug)
	d.Name = strings.TrimSpace(d.Name)
}

func (d *ProvisionDTO) Ok() (serrors.ValidationErrors, bool) {
	d.Normalize()
	errs := serrors.FromValidator(constants.Validate.Struct(d))
	if errs == nil {
		errs = serrors.ValidationErrors{}
	}
	if _, ok := errs["Slug"]; !ok && d.Slug != "" && !ValidSlug(d.Slug) {
		errs["Slug"] = "must be lowercase letters, digits and dashes"
	}
	if _, err := NormalizeSettings(d.Settings); err != nil {
		errs["Settings"] = "must be a JSON object"
	}
	if len(errs) > 0 {
		return errs, false
	}
	return nil, true
}

type UpdateSettingsDTO struct {
	Settings json.RawMessage `json:"settings"`
}

func (d *UpdateSettingsDTO) Ok() (serrors.ValidationErrors, bool) {
	if len(d.Settings) == 0 {
		return serrors.ValidationErrors{"Settings": "Settings is required"}, false
	}
	if _, err := NormalizeSettings(d.Settings); err != nil {
		return serrors.ValidationErrors{"Settings": "must be a JSON object"}, false
	}
	return nil, true
}
