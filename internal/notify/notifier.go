package notify

import (
	"context"
	"fmt"

	commonaws "meetingsync/internal/common/aws"
	"meetingsync/internal/common/config"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/models"
)

// Notifier tells sales reps about sessions that need their attention:
// a freshly opened session, an approaching expiry, or a failed CRM sync.
// Delivery is best effort; the pipeline never blocks on a notification.
type Notifier struct {
	ses *commonaws.SESClient
	sns *commonaws.SNSClient
	cfg config.NotificationConfig
	log logger.Logger
}

func NewNotifier(sesClient *commonaws.SESClient, snsClient *commonaws.SNSClient, cfg config.NotificationConfig, log logger.Logger) *Notifier {
	return &Notifier{ses: sesClient, sns: snsClient, cfg: cfg, log: log}
}

// SessionCreated invites the rep to review a new validation session.
func (n *Notifier) SessionCreated(ctx context.Context, session *models.ValidationSession) {
	subject := "Meeting summary ready for your review"
	body := fmt.Sprintf(
		"A meeting summary is waiting for validation.\n\nSession: %s\nQuestions: %d\nExpires: %s\n",
		session.ID, len(session.ValidationQuestions), session.ExpiresAt.Format("Jan 2 15:04 MST"),
	)
	n.sendEmail(ctx, session.SalesRepEmail, subject, body)
}

// SessionExpiring warns the rep that a pending session is about to expire.
func (n *Notifier) SessionExpiring(ctx context.Context, session *models.ValidationSession) {
	subject := "Meeting summary review expiring soon"
	body := fmt.Sprintf(
		"Your validation session %s expires at %s. Unanswered sessions are closed automatically.\n",
		session.ID, session.ExpiresAt.Format("Jan 2 15:04 MST"),
	)
	n.sendEmail(ctx, session.SalesRepEmail, subject, body)
}

// SyncFailed reports a failed CRM push so the rep can request a retry.
func (n *Notifier) SyncFailed(ctx context.Context, session *models.ValidationSession, record *models.CRMSyncRecord) {
	subject := fmt.Sprintf("CRM sync to %s failed", record.CRMSystem)
	body := fmt.Sprintf(
		"Syncing your validated meeting summary to %s failed.\n\nSession: %s\nError: %s\n\nThe sync can be retried from the session view.\n",
		record.CRMSystem, session.ID, record.SyncError,
	)
	n.sendEmail(ctx, session.SalesRepEmail, subject, body)
	n.publishSMS(ctx, fmt.Sprintf("CRM sync to %s failed for session %s", record.CRMSystem, session.ID))
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) {
	if !n.cfg.Email.Enabled || n.ses == nil {
		return
	}
	err := n.ses.SendPlainText(ctx, n.cfg.Email.FromEmail, to, subject, body)
	if err != nil {
		n.log.WithError(err).WithFields(map[string]interface{}{
			"recipient": to,
		}).Warn("Failed to send notification email")
	}
}

func (n *Notifier) publishSMS(ctx context.Context, message string) {
	if !n.cfg.SMS.Enabled || n.sns == nil {
		return
	}
	err := n.sns.PublishToTopic(ctx, n.cfg.SMS.TopicARN, message)
	if err != nil {
		n.log.WithError(err).Warn("Failed to publish notification")
	}
}
