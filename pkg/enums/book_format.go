package enums

import "fmt"

// BookFormat maps to the book_format enum in Postgres.
type BookFormat string

const (
	FormatEbook    BookFormat = "ebook"
	FormatPhysical BookFormat = "physical"
	FormatHybrid   BookFormat = "hybrid"
)

var validBookFormats = []BookFormat{
	FormatEbook,
	FormatPhysical,
	FormatHybrid,
}

func (f BookFormat) IsValid() bool {
	for _, candidate := range validBookFormats {
		if candidate == f {
			return true
		}
	}
	return false
}

// HasDigital reports whether the format grants a library entry.
func (f BookFormat) HasDigital() bool {
	return f == FormatEbook || f == FormatHybrid
}

// HasPhysical reports whether the format requires a shipment.
func (f BookFormat) HasPhysical() bool {
	return f == FormatPhysical || f == FormatHybrid
}

func ParseBookFormat(value string) (BookFormat, error) {
	for _, candidate := range validBookFormats {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid book format %q", value)
}
