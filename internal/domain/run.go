// Package domain holds the data model shared by every subsystem of the
// task runner: run identity, task descriptors received from the Control
// Center, and the result model reported back to it.
package domain

import "regexp"

var jobIDPattern = regexp.MustCompile(`^(\d{6})-(\d{4}-[0-9A-Fa-f]{4})$`)

// RunID identifies one execution run.
type RunID struct {
	JobID  string
	TaskID string
	Run    string
}

// JobPath returns the directory path fragment for a job id. Ids matching
// DDDDDD-DDDD-XXXX (X a hex digit) split into a date path and an id path; anything else is
// used verbatim.
func JobPath(jobID string) string {
	m := jobIDPattern.FindStringSubmatch(jobID)
	if m == nil {
		return jobID
	}
	return m[1] + "/" + m[2]
}
