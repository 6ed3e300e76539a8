package models

// GradeArgs holds the flags of the grade command.
type GradeArgs struct {
	TestRoot    string
	ContentRoot string
	// TempRoot receives compiler output; empty means the harness default.
	TempRoot       string
	ConfigFile     string
	SuiteFile      string
	JSONOutput     bool
	JSONFile       string
	NoMute         bool
	NoCompile      bool
	NoTests        bool
	CompileOptions string
	Quiet          bool
	Demo           bool
}

type DaemonArgs struct {
	Home        string
	Debug       bool
	Once        bool
	MetricsAddr string
}
