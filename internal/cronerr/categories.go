package cronerr

// Category represents the broad class of an error, used to pick an exit code.
type Category string

const (
	// CategoryUsage is an invalid invocation.
	CategoryUsage  Category = "usage"
	CategoryConfig Category = "config"

	// CategoryAccess is a refusal by the allow/deny lists.
	CategoryAccess    Category = "access"
	CategoryPrivilege Category = "privilege"

	CategoryAlreadyRunning Category = "already_running"
	CategoryBind           Category = "bind"
	CategoryPIDFile        Category = "pidfile"
	CategorySystemSource   Category = "system_source"
	CategoryUserSource     Category = "user_source"

	CategoryInternal Category = "internal"
)

// Severity indicates the impact level of an error.
type Severity string

const (
	SeverityFatal   Severity = "fatal"   // Stops execution completely
	SeverityError   Severity = "error"   // Fails the current operation
	SeverityWarning Severity = "warning" // Continues with degraded functionality
)

// Exit codes. They are part of the command line contract and never change.
const (
	ExitOK             = 0
	ExitGeneral        = 1
	ExitUsage          = 2
	ExitAlreadyRunning = 3
	ExitSystemSource   = 4
	ExitBind           = 5
	ExitAccessDenied   = 6
	ExitPrivilege      = 8
	ExitConfig         = 9
	ExitPIDFile        = 10
	ExitUserSource     = 13
)

var exitCodes = map[Category]int{
	CategoryUsage:          ExitUsage,
	CategoryConfig:         ExitConfig,
	CategoryAccess:         ExitAccessDenied,
	CategoryPrivilege:      ExitPrivilege,
	CategoryAlreadyRunning: ExitAlreadyRunning,
	CategoryBind:           ExitBind,
	CategoryPIDFile:        ExitPIDFile,
	CategorySystemSource:   ExitSystemSource,
	CategoryUserSource:     ExitUserSource,
	CategoryInternal:       ExitGeneral,
}
