// internal/workers/sync/execute-crm-sync/models.go
package executecrmsync

type Input struct {
	SyncRecordID string `json:"syncRecordId"`
}

// Output reports the sync outcome back to the workflow.
type Output struct {
	SyncRecordID string `json:"syncRecordId"`
	CRMSystem    string `json:"crmSystem"`
	SyncStatus   string `json:"syncStatus"`
	CRMRecordID  string `json:"crmRecordId,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}
