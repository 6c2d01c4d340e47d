package agent

import (
	"maps"
	"time"
)

// Context carries per-invocation information through every agent call.
// It is a value type: derived contexts are copies, the original is never
// mutated mid-invocation.
type Context struct {
	OwnerID   string
	ProjectID string
	JobID     string
	Metadata  map[string]string
	Timestamp time.Time
}

// NewContext creates an invocation context for the given actor.
func NewContext(ownerID string) Context {
	return Context{
		OwnerID:   ownerID,
		Timestamp: time.Now(),
	}
}

// WithProject returns a derived context bound to a project.
func (c Context) WithProject(projectID string) Context {
	c.ProjectID = projectID
	return c
}

// WithJob returns a derived context bound to a job.
func (c Context) WithJob(jobID string) Context {
	c.JobID = jobID
	return c
}

// WithMeta returns a derived context with an additional metadata entry.
// The receiver's metadata map is copied, never shared.
func (c Context) WithMeta(key, value string) Context {
	meta := make(map[string]string, len(c.Metadata)+1)
	maps.Copy(meta, c.Metadata)
	meta[key] = value
	c.Metadata = meta
	return c
}

// Meta returns the metadata value for key, or "" if absent.
func (c Context) Meta(key string) string {
	return c.Metadata[key]
}
