package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/mind-engage/mindengage-school/internal/logger"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

type SendgridConfig struct {
	APIKey    string
	FromName  string
	FromEmail string
	AppName   string
}

type SendgridNotifier struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	dir        Directory
	log        logger.Logger
	send       func(req sendgridRequest) (int, string, error)
}

type sendgridRequest struct {
	key  string
	body []byte
}

var _ Notifier = (*SendgridNotifier)(nil)

func NewSendgridNotifier(conf SendgridConfig, dir Directory, log logger.Logger) *SendgridNotifier {
	prefix := ""
	if conf.AppName != "" {
		prefix = "[" + conf.AppName + "] "
	}
	return &SendgridNotifier{
		key:        conf.APIKey,
		from:       sgmail.NewEmail(conf.FromName, conf.FromEmail),
		subjPrefix: prefix,
		dir:        dir,
		log:        log,
		send:       postToSendgrid,
	}
}

// AttemptScored mails the learner. Learners without an address are skipped.
func (svc *SendgridNotifier) AttemptScored(ctx context.Context, n ResultNotice) error {
	to, err := svc.dir.Email(ctx, n.LearnerID)
	if err != nil {
		return errors.Wrapf(err, "notify: look up email for %s", n.LearnerID)
	}
	if to == "" {
		svc.log.Debug("notify: learner has no email", map[string]interface{}{"learner_id": n.LearnerID})
		return nil
	}

	status, body, err := svc.send(sendgridRequest{key: svc.key, body: sgmail.GetRequestBody(svc.prepare(to, n))})
	if err != nil {
		return errors.Wrap(err, "notify: sending email")
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("notify: sendgrid status %d: %s", status, body)
	}
	return nil
}

func (svc *SendgridNotifier) prepare(to string, n ResultNotice) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + n.Subject()
	p.AddTos(sgmail.NewEmail("", to))

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", n.Text()),
		sgmail.NewContent("text/html", "<p>"+html.EscapeString(n.Text())+"</p>"),
	)
	return m
}

func postToSendgrid(r sendgridRequest) (int, string, error) {
	req := sendgrid.GetRequest(r.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = r.body
	res, err := sendgrid.API(req)
	if err != nil {
		return 0, "", err
	}
	return res.StatusCode, res.Body, nil
}
