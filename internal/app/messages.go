package app

import (
	"fmt"
	"time"
)

// ProgressMsg updates the overall progress bar.
type ProgressMsg struct {
	Tag      string // phase or task name
	Current  int64
	Total    int64
	Activity string
}

// SourceProgressMsg updates one source's row.
type SourceProgressMsg struct {
	URL     string
	Status  string
	Records int
	Errors  int
	Elapsed time.Duration
	ErrMsg  string
}

// TaskFinishedMsg signals the completion of a background task. Output is
// shown to the user when non-empty.
type TaskFinishedMsg struct {
	Tag       string
	Err       error
	StartTime time.Time
	EndTime   time.Time
	Output    string
}

// GeneralErrorMsg signals an error that is not tied to a task.
type GeneralErrorMsg struct {
	Err error
}

func NewProgress(tag string, current, total int64, activity string) ProgressMsg {
	return ProgressMsg{Tag: tag, Current: current, Total: total, Activity: activity}
}

func NewTaskFinished(tag string, start time.Time, err error, output string) TaskFinishedMsg {
	return TaskFinishedMsg{
		Tag:       tag,
		StartTime: start,
		EndTime:   time.Now(),
		Err:       err,
		Output:    output,
	}
}

func NewError(err error) GeneralErrorMsg {
	return GeneralErrorMsg{Err: err}
}

func (e GeneralErrorMsg) Error() string { return e.Err.Error() }

func (p ProgressMsg) String() string {
	return fmt.Sprintf("Progress %s: %d/%d", p.Tag, p.Current, p.Total)
}
func (sp SourceProgressMsg) String() string {
	return fmt.Sprintf("SourceProgress %s: %s", sp.URL, sp.Status)
}
func (tf TaskFinishedMsg) String() string { return fmt.Sprintf("TaskFinished %s", tf.Tag) }
