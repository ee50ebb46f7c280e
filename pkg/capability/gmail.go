package capability

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/vijay-varadarajan/AutoAgent/internal/log"
)

// CredentialSource supplies a refreshing OAuth token source for a user.
// Implemented by the auth manager; construction fails when the user has no
// stored grant.
type CredentialSource interface {
	TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error)
}

// GmailScopes lists the OAuth scopes the email capabilities need. The
// consent URL is built before any capability is registered, so this set is
// exposed separately from the registry.
func GmailScopes() []string {
	return []string{gmail.GmailSendScope, gmail.GmailReadonlyScope}
}

// RegisterGmail installs the email capabilities on a registry:
// ("email", "send") -> send_email and ("email", "read") -> read_email.
func RegisterGmail(r *Registry, creds CredentialSource) {
	r.Register("email", "send", "send_email", []string{gmail.GmailSendScope}, func(userID string) (Capability, error) {
		return &sendEmail{userID: userID, creds: creds}, nil
	})
	r.Register("email", "read", "read_email", []string{gmail.GmailReadonlyScope}, func(userID string) (Capability, error) {
		return &readEmail{userID: userID, creds: creds}, nil
	})
}

type sendEmail struct {
	userID string
	creds  CredentialSource
}

func (c *sendEmail) Name() string { return "send_email" }

func (c *sendEmail) RequiredScopes() []string { return []string{gmail.GmailSendScope} }

func (c *sendEmail) Invoke(ctx context.Context, args map[string]any) (string, error) {
	recipient := argString(args, "recipient")
	subject := argString(args, "subject")
	body := argString(args, "body")
	cc := argString(args, "cc")
	bcc := argString(args, "bcc")

	svc, err := c.gmailService(ctx)
	if err != nil {
		return "", err
	}

	log.GetLogger().Infof("User %s - Sending email to %s with subject '%s'", c.userID, recipient, subject)

	var msg strings.Builder
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	if cc != "" {
		fmt.Fprintf(&msg, "Cc: %s\r\n", cc)
	}
	if bcc != "" {
		fmt.Fprintf(&msg, "Bcc: %s\r\n", bcc)
	}
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(body)

	sent, err := svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(msg.String())),
	}).Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(err, "sending email")
	}

	return fmt.Sprintf("Email sent successfully to %s with message ID: %s", recipient, sent.Id), nil
}

func (c *sendEmail) gmailService(ctx context.Context) (*gmail.Service, error) {
	ts, err := c.creds.TokenSource(ctx, c.userID)
	if err != nil {
		return nil, errors.Wrap(err, "authenticating with Gmail")
	}
	return gmail.NewService(ctx, option.WithTokenSource(ts))
}

type readEmail struct {
	userID string
	creds  CredentialSource
}

func (c *readEmail) Name() string { return "read_email" }

func (c *readEmail) RequiredScopes() []string { return []string{gmail.GmailReadonlyScope} }

func (c *readEmail) Invoke(ctx context.Context, args map[string]any) (string, error) {
	query := argString(args, "query")
	maxResults := argInt(args, "max_results", 10)

	ts, err := c.creds.TokenSource(ctx, c.userID)
	if err != nil {
		return "", errors.Wrap(err, "authenticating with Gmail")
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return "", err
	}

	listed, err := svc.Users.Messages.List("me").Q(query).MaxResults(int64(maxResults)).Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(err, "reading emails")
	}
	if len(listed.Messages) == 0 {
		return fmt.Sprintf("No emails found matching query: '%s'", query), nil
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Found %d emails:\n", len(listed.Messages))
	for i, m := range listed.Messages {
		detail, err := svc.Users.Messages.Get("me", m.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).Do()
		if err != nil {
			return "", errors.Wrapf(err, "reading email %s", m.Id)
		}
		headers := map[string]string{}
		if detail.Payload != nil {
			for _, h := range detail.Payload.Headers {
				headers[h.Name] = h.Value
			}
		}
		fmt.Fprintf(&out, "%d. From: %s\n", i+1, headerOr(headers, "From", "Unknown"))
		fmt.Fprintf(&out, "   Subject: %s\n", headerOr(headers, "Subject", "No Subject"))
		fmt.Fprintf(&out, "   Date: %s\n\n", headerOr(headers, "Date", "Unknown"))
	}

	log.GetLogger().Infof("User %s - Retrieved %d emails", c.userID, len(listed.Messages))
	return out.String(), nil
}

func headerOr(headers map[string]string, name, fallback string) string {
	if v, ok := headers[name]; ok && v != "" {
		return v
	}
	return fallback
}

func argString(args map[string]any, name string) string {
	v, ok := args[name]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func argInt(args map[string]any, name string, fallback int) int {
	switch v := args[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		// JSON numbers decode as float64
		return int(v)
	}
	return fallback
}
