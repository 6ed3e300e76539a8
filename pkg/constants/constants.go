package constants

const (
	ST_PASSED  = 1 // test passed
	ST_FAILED  = 2 // test failed or errored
	ST_SKIPPED = 3 // test skipped, usually because a dependency did not pass
)

func GetStatusName(status int) string {
	var names = []string{"", "SUCCESS", "FAILURE", "SKIPPED"}
	if status <= 0 || status >= len(names) {
		return "UNKNOWN"
	}
	return names[status]
}

const (
	RM_NORMAL = iota
	RM_VERBOSE
	RM_MAXVERBOSE
	RM_ANONYMOUS
	RM_MUTED
)

func GetReportModeName(mode int) string {
	var names = []string{"NORMAL", "VERBOSE", "MAXVERBOSE", "ANONYMOUS", "MUTED"}
	if mode < 0 || mode >= len(names) {
		return "NORMAL"
	}
	return names[mode]
}

// Exit codes of the grade command.
const (
	EXIT_OK       = 0
	EXIT_INTERNAL = 1
	EXIT_CONFIG   = 2
	EXIT_BUSY     = 3
)

// Name prefix of engine worker goroutines; the orchestrator reaps by it.
const WorkerPrefix = "engine-worker-"

// Grading job states as stored in the submission table.
const (
	JOB_PENDING = 0
	JOB_WAITING = 1
	JOB_GRADING = 2
	JOB_GRADED  = 4
	JOB_FAILED  = 5
)
