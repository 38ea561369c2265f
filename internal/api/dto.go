package api

import (
	"github.com/starford/staffreg/internal/models"
	"github.com/starford/staffreg/internal/staffservice"
)

// Employee is one employee in a response (aliased from the domain layer).
type Employee = staffservice.Employee

// Department is one department with its members (aliased from the domain layer).
type Department = staffservice.Department

// ReloadResult is returned by POST /reload and the source endpoints.
type ReloadResult = staffservice.ReloadResult

// EmployeeListResponse wraps employee listings.
type EmployeeListResponse struct {
	Employees []Employee `json:"employees"`
	Total     int        `json:"total" example:"42"`
}

// DepartmentsResponse wraps the department grouping.
type DepartmentsResponse struct {
	Departments []Department `json:"departments"`
}

// SourcesResponse lists the source files.
type SourcesResponse struct {
	Sources []models.SourceMetadata `json:"sources"`
}

func employeeList(es []Employee) EmployeeListResponse {
	return EmployeeListResponse{Employees: es, Total: len(es)}
}
