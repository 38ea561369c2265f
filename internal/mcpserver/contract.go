package mcpserver

// LineFormatContract describes the source line format that LLM consumers
// should follow when proposing new employee records.
const LineFormatContract = `# staffreg Line Format

Each source file (default extension ` + "`.tsv`" + `) holds one employee per line.
Fields are separated by a single TAB unless the server is configured with
another delimiter.

## Fields

| # | Field      | Required | Notes                                      |
|---|------------|----------|--------------------------------------------|
| 1 | name       | yes      | Unique key for lookups; later lines win    |
| 2 | age        | yes      | Decimal integer                            |
| 3 | department | yes      | May be empty                               |
| 4 | position   | yes      | May be empty                               |
| 5 | manager    | yes      | Name of the manager; empty for top level   |
| 6+| workdays   | no       | Zero or more day tokens, e.g. Mon, Tue     |

## Rules

1. A line needs at least five fields; shorter lines are rejected.
2. An age that is not an integer rejects the line.
3. Rejected lines are reported with their file and line number; the rest load.
4. Blank lines are ignored. A trailing carriage return is stripped.
5. Day tokens are compared exactly: ` + "`Mon`" + ` and ` + "`monday`" + ` are different days.
6. Managers refer to employees by name. Cycles are tolerated but best avoided.

## Example

` + "```" + `
Alice	52	Exec	CEO		Mon	Tue	Wed	Thu	Fri
Bob	41	Eng	Director	Alice	Mon	Tue
Dan	29	Eng	Developer	Bob	Mon	Fri
` + "```" + `
`
