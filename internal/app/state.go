package app

// AppState represents the different views/modes of the application.
type AppState int

const (
	ShowMenu AppState = iota
	RunningStats
	InspectingReports
	ComparingRuns
	ShowResult
	ShowError
	Exiting
)

func (s AppState) busy() bool {
	return s == RunningStats || s == InspectingReports || s == ComparingRuns
}
