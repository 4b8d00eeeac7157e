package models

// NotificationJob is one outbound message for one recipient. It lives only
// for the duration of a batch run; only stats and the run report persist.
type NotificationJob struct {
	Recipient string
	Subject   string
	HTMLBody  string
	TextBody  string
	TenderIDs []string
	ConfigIDs []int64
}

// RunReport summarizes one batch run.
type RunReport struct {
	ProcessedOwners int
	EmailsSent      int
	Errors          []string
}
