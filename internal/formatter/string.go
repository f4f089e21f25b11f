package formatter

import (
	"errors"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
)

// ErrEmptyPattern is returned when a string formatter has nothing to render.
var ErrEmptyPattern = errors.New("string formatter requires a pattern")

// Pattern tokens:
//
//	%n street number   %S street name   %z zip code
//	%P country         %p country code
//	%c city            %T state         %t state code
var stringTokens = map[byte]func(domain.Result) string{
	'n': func(r domain.Result) string { return r.StreetNumber },
	'S': func(r domain.Result) string { return r.StreetName },
	'z': func(r domain.Result) string { return r.ZipCode },
	'P': func(r domain.Result) string { return r.Country },
	'p': func(r domain.Result) string { return r.CountryCode },
	'c': func(r domain.Result) string { return r.City },
	'T': func(r domain.Result) string { return r.State },
	't': func(r domain.Result) string { return r.StateCode },
}

// String renders each Result through a token pattern. Each token is
// substituted at its first occurrence only; later repeats stay literal.
type String struct {
	pattern string
}

// NewString creates a String formatter. An empty pattern returns ErrEmptyPattern.
func NewString(pattern string) (*String, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}
	return &String{pattern: pattern}, nil
}

func (*String) Name() string { return "string" }

// Format returns one string per Result, in order.
func (s *String) Format(rs *domain.ResultSet) (any, error) {
	if s.pattern == "" {
		return nil, ErrEmptyPattern
	}
	out := make([]string, 0, rs.Len())
	if rs == nil {
		return out, nil
	}
	for _, r := range rs.Results {
		out = append(out, s.render(r))
	}
	return out, nil
}

func (s *String) render(r domain.Result) string {
	var b strings.Builder
	used := make(map[byte]bool, len(stringTokens))
	for i := 0; i < len(s.pattern); i++ {
		c := s.pattern[i]
		if c == '%' && i+1 < len(s.pattern) {
			tok := s.pattern[i+1]
			if value, ok := stringTokens[tok]; ok && !used[tok] {
				used[tok] = true
				b.WriteString(value(r))
				i++
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
