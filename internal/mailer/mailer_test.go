package mailer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/emersion/go-message/mail"

	"github.com/amishk599/jobrelay/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuild_BodyAndAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatal(err)
	}

	raw, err := Build(Message{
		From:           "me@example.com",
		To:             "hr@acme.io",
		Subject:        "Go developer application",
		Body:           "Hello! Please find my resume attached.",
		AttachmentPath: path,
	}, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}
	if subj, _ := mr.Header.Subject(); subj != "Go developer application" {
		t.Errorf("subject = %q", subj)
	}

	var (
		body       string
		attachName string
		attachData []byte
	)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			b, _ := io.ReadAll(p.Body)
			body = string(b)
		case *mail.AttachmentHeader:
			attachName, _ = h.Filename()
			attachData, _ = io.ReadAll(p.Body)
		}
	}

	if !strings.Contains(body, "resume attached") {
		t.Errorf("body = %q", body)
	}
	if attachName != "resume.pdf" || string(attachData) != "%PDF-1.4 fake" {
		t.Errorf("attachment = %q (%q)", attachName, attachData)
	}
}

func TestBuild_MissingAttachment(t *testing.T) {
	_, err := Build(Message{From: "a@b.c", To: "d@e.f", AttachmentPath: "/nonexistent/cv.pdf"}, time.Now())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

type recordingTransport struct {
	from string
	to   []string
	raw  []byte
	err  error
}

func (r *recordingTransport) SendRaw(_ context.Context, from string, to []string, raw []byte) error {
	r.from, r.to, r.raw = from, to, raw
	return r.err
}

func TestMailer_SendEmail(t *testing.T) {
	tr := &recordingTransport{}
	m := New("me@example.com", tr, discardLogger())

	if err := m.SendEmail(context.Background(), "hr@acme.io", "Hi", "body text", ""); err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	if tr.from != "me@example.com" || len(tr.to) != 1 || tr.to[0] != "hr@acme.io" {
		t.Errorf("envelope = %s -> %v", tr.from, tr.to)
	}
	if !bytes.Contains(tr.raw, []byte("body text")) {
		t.Error("raw message missing body")
	}

	if err := m.SendEmail(context.Background(), "not-an-address", "Hi", "x", ""); err == nil {
		t.Error("expected error for invalid address")
	}
}

type fakeSES struct {
	input *ses.SendRawEmailInput
	err   error
}

func (f *fakeSES) SendRawEmail(_ context.Context, in *ses.SendRawEmailInput, _ ...func(*ses.Options)) (*ses.SendRawEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendRawEmailOutput{MessageId: aws.String("abc")}, nil
}

func TestSESTransport(t *testing.T) {
	fake := &fakeSES{}
	tr := &SESTransport{client: fake}

	if err := tr.SendRaw(context.Background(), "me@example.com", []string{"hr@acme.io"}, []byte("raw")); err != nil {
		t.Fatalf("SendRaw: %v", err)
	}
	if aws.ToString(fake.input.Source) != "me@example.com" || string(fake.input.RawMessage.Data) != "raw" {
		t.Errorf("input = %+v", fake.input)
	}

	fake.err = &types.MessageRejected{Message: aws.String("Email address is not verified")}
	err := tr.SendRaw(context.Background(), "me@example.com", []string{"hr@acme.io"}, []byte("raw"))
	if model.SendErrorKindOf(err) != model.KindPermanent {
		t.Errorf("rejected: err = %v, want permanent", err)
	}

	fake.err = errors.New("connection reset by peer")
	err = tr.SendRaw(context.Background(), "me@example.com", []string{"hr@acme.io"}, []byte("raw"))
	if model.SendErrorKindOf(err) != model.KindTransient {
		t.Errorf("network: err = %v, want transient", err)
	}
}
