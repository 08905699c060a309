package enums

// ReportState mirrors the lifecycle states returned by the performance API.
type ReportState string

const (
	ReportStateNew        ReportState = ""
	ReportStateNotStarted ReportState = "NOT_STARTED"
	ReportStateInProgress ReportState = "IN_PROGRESS"
	ReportStateOK         ReportState = "OK"
	ReportStateError      ReportState = "ERROR"
	// ReportStateFail is local only: the download was gone (404).
	ReportStateFail ReportState = "FAIL"
)

func (s ReportState) String() string {
	return string(s)
}

// IsPending reports whether the remote report is still being built.
func (s ReportState) IsPending() bool {
	return s == ReportStateNew || s == ReportStateNotStarted || s == ReportStateInProgress
}

// Report section names found in a downloaded statistics report.
const (
	ReportSectionSKU         = "SKU"
	ReportSectionSearchPromo = "SEARCH_PROMO"
)

const CampaignStateRunning = "CAMPAIGN_STATE_RUNNING"
