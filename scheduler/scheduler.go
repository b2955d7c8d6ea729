// Package scheduler owns the in-process daily trigger for the update job.
// It launches the job at a fixed local time; the job itself runs out of process.
// The scheduler is implemented in jobs.go
package scheduler
