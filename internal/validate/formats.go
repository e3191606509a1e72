package validate

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/quarry/internal/schema"
)

var errBadDate = errors.New("unrecognised date layout")

func checkFormat(format, s string) error {
	switch format {
	case schema.FormatDate:
		if _, ok := schema.ParseDate(s); !ok {
			return errBadDate
		}
		return nil
	case schema.FormatDateTime:
		_, err := time.Parse(time.RFC3339, s)
		return err
	case schema.FormatEmail:
		return validation.Validate(s, validation.Required, is.EmailFormat)
	case schema.FormatURI:
		return validation.Validate(s, validation.Required, is.URL)
	case schema.FormatUUID:
		return validation.Validate(s, validation.Required, is.UUID)
	}
	return nil
}
