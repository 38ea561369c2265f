// Package record defines the employee record parsed from one source line.
package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/staffreg/internal/apperr"
	"github.com/starford/staffreg/internal/parser"
)

// MinFields is the number of positional fields every line must carry.
const MinFields = 5

// Record is one employee. It is immutable once constructed.
type Record struct {
	name       string
	age        int
	department string
	position   string
	manager    string
	workdays   []string
}

// New builds a record from already split values.
func New(name string, age int, department, position, manager string, workdays ...string) Record {
	days := make([]string, len(workdays))
	copy(days, workdays)
	return Record{
		name:       name,
		age:        age,
		department: department,
		position:   position,
		manager:    manager,
		workdays:   days,
	}
}

// Parse builds a record from a tab-delimited line.
func Parse(line string) (Record, error) {
	return ParseDelimited(line, parser.DefaultDelimiter)
}

// ParseDelimited builds a record from a line using sep as field delimiter.
//
// Fields are name, age, department, position, manager, then any number of
// workday tokens. An empty manager means the record has none. Empty workday
// tokens, from doubled or trailing delimiters, are not days and are dropped;
// the remaining tokens keep their order.
func ParseDelimited(line, sep string) (Record, error) {
	fields := parser.Fields(line, sep)
	if len(fields) < MinFields {
		return Record{}, fmt.Errorf("record: %d fields, need at least %d: %w", len(fields), MinFields, apperr.ErrMalformedRecord)
	}

	age, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return Record{}, fmt.Errorf("record: age %q: %w", fields[1], apperr.ErrInvalidAge)
	}

	var days []string
	for _, d := range fields[MinFields:] {
		if d == "" {
			continue
		}
		days = append(days, d)
	}

	return Record{
		name:       fields[0],
		age:        age,
		department: fields[2],
		position:   fields[3],
		manager:    fields[4],
		workdays:   days,
	}, nil
}

// Name returns the employee name. Names are matched exactly, case included.
func (r *Record) Name() string { return r.name }

// Age returns the age in years.
func (r *Record) Age() int { return r.age }

// Department returns the department name.
func (r *Record) Department() string { return r.department }

// Position returns the job title.
func (r *Record) Position() string { return r.position }

// Manager returns the name of the record's manager, or "" when it has none.
func (r *Record) Manager() string { return r.manager }

// Workdays returns a copy of the record's day tokens in source order.
func (r *Record) Workdays() []string {
	out := make([]string, len(r.workdays))
	copy(out, r.workdays)
	return out
}

// WorksOn reports whether day is one of the record's workdays.
func (r *Record) WorksOn(day string) bool {
	for _, d := range r.workdays {
		if d == day {
			return true
		}
	}
	return false
}

// EachWorkday calls fn for every day token, duplicates included, without
// copying the slice.
func (r *Record) EachWorkday(fn func(day string)) {
	for _, d := range r.workdays {
		fn(d)
	}
}
