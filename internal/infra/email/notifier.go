package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// SMTPNotifier mails the uploading user when a geotag job is dropped to
// the dead letter queue. Plain unauthenticated SMTP, relay handles the
// rest.
type SMTPNotifier struct {
	addr   string
	from   string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		addr:   fmt.Sprintf("%s:%d", host, port),
		from:   from,
		logger: logger,
	}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, userEmail, jobID, videoKey, errorMsg string) error {
	subject := fmt.Sprintf("Geotagging failed for your dashcam video (job %s)", jobID)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", userEmail)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b,
		"Hello,\r\n\r\n"+
			"We could not geotag your dashcam video, even after retrying.\r\n\r\n"+
			"Job:   %s\r\n"+
			"Video: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"Make sure the camera records with GPS enabled, then upload the clip again.\r\n\r\n"+
			"-- viofo2jpg worker\r\n",
		jobID, videoKey, errorMsg,
	)

	if err := smtp.SendMail(n.addr, nil, n.from, []string{userEmail}, []byte(b.String())); err != nil {
		n.logger.Error("failure notification not sent",
			zap.String("to", userEmail),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification sent",
		zap.String("to", userEmail),
		zap.String("job_id", jobID),
	)
	return nil
}
