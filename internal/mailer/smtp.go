package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/amishk599/jobrelay/internal/model"
)

// SMTPTransport sends through an SMTP relay, upgrading with STARTTLS when
// offered and authenticating with PLAIN when a username is set.
type SMTPTransport struct {
	host     string
	port     int
	username string
	password string
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewSMTPTransport(host string, port int, username, password string) *SMTPTransport {
	return &SMTPTransport{
		host:     host,
		port:     port,
		username: username,
		password: password,
		dial:     (&net.Dialer{}).DialContext,
	}
}

// SendRaw runs one SMTP exchange bound to ctx: the dial honours it, the
// connection deadline follows its deadline, and cancellation aborts any
// pending read or write.
func (t *SMTPTransport) SendRaw(ctx context.Context, from string, to []string, raw []byte) error {
	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port))
	conn, err := t.dial(ctx, "tcp", addr)
	if err != nil {
		return t.failure(ctx, fmt.Errorf("dialing %s: %w", addr, err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := t.exchange(conn, from, to, raw); err != nil {
		return t.failure(ctx, err)
	}
	return nil
}

func (t *SMTPTransport) exchange(conn net.Conn, from string, to []string, raw []byte) error {
	c, err := smtp.NewClient(conn, t.host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if t.username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp relay does not support AUTH")
		}
		if err := c.Auth(smtp.PlainAuth("", t.username, t.password, t.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// failure reports a cancelled or timed-out exchange as transient, whatever
// error the aborted connection produced.
func (t *SMTPTransport) failure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &model.SendError{Kind: model.KindTransient, Err: fmt.Errorf("%w: %v", ctxErr, err)}
	}
	return classifySMTPError(err)
}

// classifySMTPError maps 5xx replies to permanent failures and 4xx replies or
// network trouble to transient ones.
func classifySMTPError(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code >= 500:
			return &model.SendError{Kind: model.KindPermanent, Err: err}
		case tpErr.Code >= 400:
			return &model.SendError{Kind: model.KindTransient, Err: err}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &model.SendError{Kind: model.KindTransient, Err: err}
	}
	return &model.SendError{Kind: model.KindUnknown, Err: err}
}
