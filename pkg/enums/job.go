package enums

import "fmt"

// JobName identifies a synchronization entry point.
type JobName string

const (
	JobUpdateProducts           JobName = "update_products"
	JobUpdateStocks             JobName = "update_stocks"
	JobUpdateAnalytics          JobName = "update_analytics"
	JobUpdateTransactions       JobName = "update_transactions"
	JobUpdateOrders             JobName = "update_orders"
	JobUpdateCampaigns          JobName = "update_campaigns"
	JobUpdateCampaignStatistics JobName = "update_campaign_statistics"
	JobCreateCampaignReports    JobName = "create_campaign_report"
	JobCheckCampaignReports     JobName = "check_campaign_report"
	JobUpdateAll                JobName = "update_all"
)

var jobCredentialTypes = map[JobName]CredentialType{
	JobUpdateProducts:           CredentialTypeSeller,
	JobUpdateStocks:             CredentialTypeSeller,
	JobUpdateAnalytics:          CredentialTypeSeller,
	JobUpdateTransactions:       CredentialTypeSeller,
	JobUpdateOrders:             CredentialTypeSeller,
	JobUpdateCampaigns:          CredentialTypePerformance,
	JobUpdateCampaignStatistics: CredentialTypePerformance,
	JobCreateCampaignReports:    CredentialTypePerformance,
	JobCheckCampaignReports:     CredentialTypePerformance,
	JobUpdateAll:                CredentialTypeSeller,
}

func (j JobName) String() string {
	return string(j)
}

func (j JobName) IsValid() bool {
	_, ok := jobCredentialTypes[j]
	return ok
}

// CredentialType returns the API credential a job authenticates with.
func (j JobName) CredentialType() CredentialType {
	return jobCredentialTypes[j]
}

func ParseJobName(value string) (JobName, error) {
	job := JobName(value)
	if !job.IsValid() {
		return "", fmt.Errorf("invalid job name %q", value)
	}
	return job, nil
}

// ResultStatus tags the outcome of a job run.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailure ResultStatus = "failure"
)
