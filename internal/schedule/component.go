// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package schedule

import (
	"strconv"
	"strings"
)

// Field identifies the calendar field a Component matches
type Field int

const (
	Month Field = iota
	Day
	Hour
	Minute
	Second
	Weekday
)

func (f Field) String() string {
	switch f {
	case Month:
		return "Month"
	case Day:
		return "Day"
	case Hour:
		return "Hour"
	case Minute:
		return "Minute"
	case Second:
		return "Second"
	case Weekday:
		return "Weekday"
	}
	return "Field(" + strconv.Itoa(int(f)) + ")"
}

// Min returns the smallest value of the field's domain
func (f Field) Min() int {
	switch f {
	case Month, Day:
		return 1
	}
	return 0
}

// Max returns the largest value of the field's domain
func (f Field) Max() int {
	switch f {
	case Month:
		return 12
	case Day:
		return 31
	case Hour:
		return 23
	case Minute, Second:
		return 59
	case Weekday:
		return 6
	}
	return 0
}

// Component is a compiled admissibility table for one calendar field.
// Weekday uses 0 = Sunday.
type Component struct {
	field   Field
	allowed []bool // indexed by value, 0..Max
}

// ParseComponent compiles a pattern such as "*", "1-5", "!0 !6", "-12" or "0 30".
// Tokens are applied in order so later "!" tokens can remove earlier values.
func ParseComponent(field Field, pattern string) (*Component, error) {
	c := &Component{
		field:   field,
		allowed: make([]bool, field.Max()+1),
	}

	for _, token := range strings.Fields(pattern) {
		val := true
		item := token
		if strings.HasPrefix(item, "!") {
			val = false
			item = item[1:]
		}

		if item == "*" {
			for i := field.Min(); i <= field.Max(); i++ {
				c.allowed[i] = val
			}
			continue
		}

		if dash := strings.IndexByte(item, '-'); dash >= 0 {
			lo, hi := field.Min(), field.Max()
			var err error
			if dash > 0 {
				if lo, err = parseValue(field, item[:dash]); err != nil {
					return nil, err
				}
			}
			if dash < len(item)-1 {
				if hi, err = parseValue(field, item[dash+1:]); err != nil {
					return nil, err
				}
			}
			if lo > hi {
				return nil, &ConfigError{Field: field.String(), Value: token, Reason: "range start exceeds range end"}
			}
			for i := lo; i <= hi; i++ {
				c.allowed[i] = val
			}
			continue
		}

		v, err := parseValue(field, item)
		if err != nil {
			return nil, err
		}
		c.allowed[v] = val
	}

	for i := field.Min(); i <= field.Max(); i++ {
		if c.allowed[i] {
			return c, nil
		}
	}
	return nil, &ConfigError{Field: field.String(), Value: pattern, Reason: "requires at least one allowed value"}
}

// MustParseComponent is like ParseComponent but panics on error
func MustParseComponent(field Field, pattern string) *Component {
	c, err := ParseComponent(field, pattern)
	if err != nil {
		panic(err)
	}
	return c
}

func parseValue(field Field, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ConfigError{Field: field.String(), Value: s, Reason: "not a number"}
	}
	if v < field.Min() || v > field.Max() {
		return 0, &ConfigError{
			Field:  field.String(),
			Value:  s,
			Reason: "out of range " + strconv.Itoa(field.Min()) + "-" + strconv.Itoa(field.Max()),
		}
	}
	return v, nil
}

// Field returns the calendar field of the component
func (c *Component) Field() Field {
	return c.field
}

// Has reports whether v is admissible
func (c *Component) Has(v int) bool {
	if v < 0 || v >= len(c.allowed) {
		return false
	}
	return c.allowed[v]
}

// Next returns the smallest admissible value >= current. Day values beyond the
// length of month/year are treated as missing, which forces a rollover. On
// rollover the first admissible value is returned.
func (c *Component) Next(current, month, year int) (value int, rolledOver, changed bool) {
	if current < c.field.Min() {
		current = c.field.Min()
	}
	for i := current; i <= c.field.Max(); i++ {
		if !c.allowed[i] {
			continue
		}
		if c.field == Day && i > DaysIn(month, year) {
			break
		}
		return i, false, i != current
	}
	first := c.First(month, year)
	return first, true, first != current
}

// First returns the smallest admissible value of the field
func (c *Component) First(month, year int) int {
	for i := c.field.Min(); i <= c.field.Max(); i++ {
		if c.allowed[i] {
			return i
		}
	}
	// unreachable for parsed components
	return c.field.Min()
}

// String renders the admissible values, e.g. "1-5,7"
func (c *Component) String() string {
	var parts []string
	for i := c.field.Min(); i <= c.field.Max(); i++ {
		if !c.allowed[i] {
			continue
		}
		j := i
		for j+1 <= c.field.Max() && c.allowed[j+1] {
			j++
		}
		if j == i {
			parts = append(parts, strconv.Itoa(i))
		} else {
			parts = append(parts, strconv.Itoa(i)+"-"+strconv.Itoa(j))
		}
		i = j
	}
	if len(parts) == 1 && parts[0] == strconv.Itoa(c.field.Min())+"-"+strconv.Itoa(c.field.Max()) {
		return "*"
	}
	return strings.Join(parts, ",")
}

// DaysIn returns the number of days of month in year
func DaysIn(month, year int) int {
	switch month {
	case 4, 6, 9, 11:
		return 30
	case 2:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	}
	return 31
}

// IsLeapYear reports whether year is a Gregorian leap year
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
