package record

import (
	"fmt"
	"strings"
)

// Column widths of the tabular rendering.
const (
	nameWidth = 20
	ageWidth  = 5
	deptWidth = 15
	posWidth  = 15
	mgrWidth  = 20
	daysWidth = 30
)

var rowFormat = fmt.Sprintf("%%-%ds%%-%dv%%-%ds%%-%ds%%-%ds%%-%ds",
	nameWidth, ageWidth, deptWidth, posWidth, mgrWidth, daysWidth)

// Render formats the record as a fixed-width, left-aligned row.
func (r *Record) Render() string {
	return fmt.Sprintf(rowFormat, r.name, r.age, r.department, r.position, r.manager, strings.Join(r.workdays, " "))
}

// String implements fmt.Stringer.
func (r *Record) String() string { return r.Render() }

// Header renders the column titles aligned with Render.
func Header() string {
	return fmt.Sprintf(rowFormat, "Name", "Age", "Department", "Position", "Manager", "Workdays")
}
