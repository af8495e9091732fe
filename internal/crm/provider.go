package crm

import (
	"context"
	"fmt"
	"time"

	"meetingsync/internal/common/config"
	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/models"
)

// MeetingOutcome is the provider-neutral description of a validated meeting
// pushed into a CRM. FormatMeetingData translates it into the provider's
// native field vocabulary; the translation is lossy and one-way.
type MeetingOutcome struct {
	Title       string
	Summary     string
	Outcome     string
	MeetingDate time.Time
	Updates     map[string]interface{}
}

// TaskData is the provider-neutral follow-up task description.
type TaskData struct {
	Subject        string
	Description    string
	DueDate        string
	Priority       string
	ParentRecordID string
}

// OpportunityDetails normalizes the deal fields every provider models:
// stage, probability, amount and close date.
type OpportunityDetails struct {
	ID          string
	Stage       string
	Probability float64
	Amount      float64
	CloseDate   string
	Raw         map[string]interface{}
}

// Provider is the common capability surface over one CRM system.
type Provider interface {
	System() models.CRMSystem
	// Authenticate forces a token fetch, which is useful for connection
	// checks; routine requests authenticate lazily through the token cache.
	Authenticate(ctx context.Context) error
	FormatMeetingData(outcome MeetingOutcome) map[string]interface{}
	FormatTaskData(task TaskData) map[string]interface{}
	UpdateRecord(ctx context.Context, objectType, recordID string, fields map[string]interface{}) (map[string]interface{}, error)
	CreateTask(ctx context.Context, task TaskData) (map[string]interface{}, error)
	UpdateOpportunityStage(ctx context.Context, opportunityID, stage string) error
	GetOpportunityDetails(ctx context.Context, opportunityID string) (*OpportunityDetails, error)
}

// NewProvider builds the client for one CRM system. The provider set is
// closed; there is no dynamic registration.
func NewProvider(system models.CRMSystem, cfg config.ProviderConfig, log logger.Logger) (Provider, error) {
	tokens := newTokenSource(string(system), cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, cfg.Scope, nil)
	base := newBaseClient(
		system,
		cfg.BaseURL,
		tokens,
		newProviderLimiter(cfg.RequestsPerMinute),
		DefaultRetryPolicy(cfg.MaxRetries),
		time.Duration(cfg.Timeout)*time.Millisecond,
		log,
	)

	switch system {
	case models.CRMSalesforce:
		return &SalesforceClient{baseClient: base}, nil
	case models.CRMHubSpot:
		return &HubSpotClient{baseClient: base}, nil
	case models.CRMSAPC4C:
		return &SAPC4CClient{baseClient: base}, nil
	case models.CRMCreatio:
		return &CreatioClient{baseClient: base}, nil
	default:
		return nil, commonerrors.NewInvalidArgumentError(fmt.Sprintf("unsupported CRM system: %q", system))
	}
}

// Registry holds the single client instance per configured provider. The
// instances own their token caches and rate limiters, so they must be shared
// by every concurrent job in the process.
type Registry struct {
	providers map[models.CRMSystem]Provider
}

// NewRegistry instantiates clients for every provider with credentials
// configured. Unconfigured providers are simply absent.
func NewRegistry(cfg config.CRMConfig, log logger.Logger) (*Registry, error) {
	providerConfigs := map[models.CRMSystem]config.ProviderConfig{
		models.CRMSalesforce: cfg.Salesforce,
		models.CRMHubSpot:    cfg.HubSpot,
		models.CRMSAPC4C:     cfg.SAPC4C,
		models.CRMCreatio:    cfg.Creatio,
	}

	registry := &Registry{providers: make(map[models.CRMSystem]Provider)}
	for system, pc := range providerConfigs {
		if !pc.Configured() {
			continue
		}
		provider, err := NewProvider(system, pc, log)
		if err != nil {
			return nil, err
		}
		registry.providers[system] = provider
	}
	return registry, nil
}

// Get returns the client for a system, or an InvalidArgument error when the
// system is unknown or not configured.
func (r *Registry) Get(system models.CRMSystem) (Provider, error) {
	provider, ok := r.providers[system]
	if !ok {
		return nil, commonerrors.NewInvalidArgumentError(fmt.Sprintf("CRM system %q is not configured", system))
	}
	return provider, nil
}

// Systems lists the configured providers in the canonical order.
func (r *Registry) Systems() []models.CRMSystem {
	var systems []models.CRMSystem
	for _, system := range models.AllCRMSystems() {
		if _, ok := r.providers[system]; ok {
			systems = append(systems, system)
		}
	}
	return systems
}
