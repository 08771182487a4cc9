package jobs

// Status is reported by the job engines when a job completes
type Status int32

const (
	StatusSuccess Status = iota
	StatusOutOfMemory
	StatusAbort
	StatusTimeoutSW
	StatusHang
	StatusSegFault
	StatusIllegalJob
	StatusUnknownError
	StatusShutdown
	StatusSystemUnusable
)

var statusMapping = make(map[Status]string)

func (s Status) String() string {
	return statusMapping[s]
}

func init() {
	statusMapping[StatusSuccess] = "StatusSuccess"
	statusMapping[StatusOutOfMemory] = "StatusOutOfMemory"
	statusMapping[StatusAbort] = "StatusAbort"
	statusMapping[StatusTimeoutSW] = "StatusTimeoutSW"
	statusMapping[StatusHang] = "StatusHang"
	statusMapping[StatusSegFault] = "StatusSegFault"
	statusMapping[StatusIllegalJob] = "StatusIllegalJob"
	statusMapping[StatusUnknownError] = "StatusUnknownError"
	statusMapping[StatusShutdown] = "StatusShutdown"
	statusMapping[StatusSystemUnusable] = "StatusSystemUnusable"
}
